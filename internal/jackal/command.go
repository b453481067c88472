package jackal

// Operation kinds. The kind string is the key in the JSON union and the key
// of the message catalog.
const (
	KindMakeRoot       = "make_root"
	KindPostFile       = "post_file"
	KindAddViewers     = "add_viewers"
	KindDeleteViewers  = "delete_viewers"
	KindBuyStorage     = "buy_storage"
	KindUpgradeStorage = "upgrade_storage"
	KindCancelContract = "cancel_contract"
	KindSignContract   = "sign_contract"
	KindPostKey        = "post_key"
	KindDelete         = "delete"
)

// Command is one storage-network operation.
//
// Args returns the caller-supplied fields by their snake_case name. Values
// are either string or uint64.
type Command interface {
	Kind() string
	Args() map[string]any
	command()
}

// MakeRoot creates the absolute root folder of the account's storage.
type MakeRoot struct {
	Editors        string `json:"editors" yaml:"editors"`
	Viewers        string `json:"viewers" yaml:"viewers"`
	TrackingNumber string `json:"tracking_number" yaml:"tracking_number"`
}

func (MakeRoot) Kind() string { return KindMakeRoot }
func (c MakeRoot) Args() map[string]any {
	return map[string]any{
		"editors":         c.Editors,
		"viewers":         c.Viewers,
		"tracking_number": c.TrackingNumber,
	}
}
func (MakeRoot) command() {}

// PostFile creates or replaces a file or folder under HashParent.
type PostFile struct {
	HashParent     string `json:"hash_parent" yaml:"hash_parent"`
	HashChild      string `json:"hash_child" yaml:"hash_child"`
	Contents       string `json:"contents" yaml:"contents"`
	Viewers        string `json:"viewers" yaml:"viewers"`
	Editors        string `json:"editors" yaml:"editors"`
	TrackingNumber string `json:"tracking_number" yaml:"tracking_number"`
}

func (PostFile) Kind() string { return KindPostFile }
func (c PostFile) Args() map[string]any {
	return map[string]any{
		"hash_parent":     c.HashParent,
		"hash_child":      c.HashChild,
		"contents":        c.Contents,
		"viewers":         c.Viewers,
		"editors":         c.Editors,
		"tracking_number": c.TrackingNumber,
	}
}
func (PostFile) command() {}

// AddViewers grants read access on a file to a set of viewers.
type AddViewers struct {
	ViewerIDs  string `json:"viewer_ids" yaml:"viewer_ids"`
	ViewerKeys string `json:"viewer_keys" yaml:"viewer_keys"`
	Address    string `json:"address" yaml:"address"`
	Owner      string `json:"owner" yaml:"owner"`
}

func (AddViewers) Kind() string { return KindAddViewers }
func (c AddViewers) Args() map[string]any {
	return map[string]any{
		"viewer_ids":  c.ViewerIDs,
		"viewer_keys": c.ViewerKeys,
		"address":     c.Address,
		"owner":       c.Owner,
	}
}
func (AddViewers) command() {}

// DeleteViewers revokes read access on a file.
type DeleteViewers struct {
	ViewerIDs string `json:"viewer_ids" yaml:"viewer_ids"`
	Address   string `json:"address" yaml:"address"`
	Owner     string `json:"owner" yaml:"owner"`
}

func (DeleteViewers) Kind() string { return KindDeleteViewers }
func (c DeleteViewers) Args() map[string]any {
	return map[string]any{
		"viewer_ids": c.ViewerIDs,
		"address":    c.Address,
		"owner":      c.Owner,
	}
}
func (DeleteViewers) command() {}

// BuyStorage purchases a storage plan for ForAddress.
type BuyStorage struct {
	ForAddress   string `json:"for_address" yaml:"for_address"`
	DurationDays uint64 `json:"duration_days" yaml:"duration_days"`
	Bytes        uint64 `json:"bytes" yaml:"bytes"`
	PaymentDenom string `json:"payment_denom" yaml:"payment_denom"`
}

func (BuyStorage) Kind() string { return KindBuyStorage }
func (c BuyStorage) Args() map[string]any {
	return map[string]any{
		"for_address":   c.ForAddress,
		"duration_days": c.DurationDays,
		"bytes":         c.Bytes,
		"payment_denom": c.PaymentDenom,
	}
}
func (BuyStorage) command() {}

// UpgradeStorage changes an existing storage plan.
type UpgradeStorage struct {
	ForAddress   string `json:"for_address" yaml:"for_address"`
	DurationDays uint64 `json:"duration_days" yaml:"duration_days"`
	Bytes        uint64 `json:"bytes" yaml:"bytes"`
	PaymentDenom string `json:"payment_denom" yaml:"payment_denom"`
}

func (UpgradeStorage) Kind() string { return KindUpgradeStorage }
func (c UpgradeStorage) Args() map[string]any {
	return map[string]any{
		"for_address":   c.ForAddress,
		"duration_days": c.DurationDays,
		"bytes":         c.Bytes,
		"payment_denom": c.PaymentDenom,
	}
}
func (UpgradeStorage) command() {}

// CancelContract cancels an active storage contract by content id.
type CancelContract struct {
	CID string `json:"cid" yaml:"cid"`
}

func (CancelContract) Kind() string           { return KindCancelContract }
func (c CancelContract) Args() map[string]any { return map[string]any{"cid": c.CID} }
func (CancelContract) command()               {}

// SignContract accepts a storage contract by content id.
type SignContract struct {
	CID string `json:"cid" yaml:"cid"`
}

func (SignContract) Kind() string           { return KindSignContract }
func (c SignContract) Args() map[string]any { return map[string]any{"cid": c.CID} }
func (SignContract) command()               {}

// PostKey publishes the account's ECIES public key.
type PostKey struct {
	Key string `json:"key" yaml:"key"`
}

func (PostKey) Kind() string           { return KindPostKey }
func (c PostKey) Args() map[string]any { return map[string]any{"key": c.Key} }
func (PostKey) command()               {}

// Delete is modeled but has no destination message yet.
type Delete struct{}

func (Delete) Kind() string         { return KindDelete }
func (Delete) Args() map[string]any { return map[string]any{} }
func (Delete) command()             {}

// Unsupported carries an operation name this build does not know.
type Unsupported struct {
	Name string `json:"-" yaml:"-"`
}

func (c Unsupported) Kind() string       { return c.Name }
func (Unsupported) Args() map[string]any { return map[string]any{} }
func (Unsupported) command()             {}

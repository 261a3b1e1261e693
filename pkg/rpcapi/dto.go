// Package rpcapi is the typed API caller/dispatcher layer over pkg/wire: the
// named RPC method catalogue (spec §4.7), its argument and response DTOs
// (spec §6), and the streaming helper types both a client and a server side
// use. It is grounded on the teacher's pkg/control/api.go — the same
// Request/Response/Server shape, generalized from the teacher's flat
// method-name JSON-RPC dispatch to this protocol's selector-path,
// call-style RPC methods running over pkg/wire.Muxer.
package rpcapi

// CreateHistoryStreamIn is the argument DTO for ["createHistoryStream"].
type CreateHistoryStreamIn struct {
	ID     string `json:"id"`
	Seq    *int64 `json:"seq,omitempty"`
	Live   *bool  `json:"live,omitempty"`
	Keys   *bool  `json:"keys,omitempty"`
	Values *bool  `json:"values,omitempty"`
	Limit  int64  `json:"limit"`
}

// NewCreateHistoryStreamIn applies the "limit default -1" rule from §6.
func NewCreateHistoryStreamIn(id string) CreateHistoryStreamIn {
	return CreateHistoryStreamIn{ID: id, Limit: -1}
}

// CreateStreamIn is the generic cursor-range argument DTO for
// ["createFeedStream"] and similar log-cursor methods, parameterized by the
// key type K (spec §6's CreateStreamIn<K>).
type CreateStreamIn[K any] struct {
	Live          *bool  `json:"live,omitempty"`
	GT            *K     `json:"gt,omitempty"`
	GTE           *K     `json:"gte,omitempty"`
	LT            *K     `json:"lt,omitempty"`
	LTE           *K     `json:"lte,omitempty"`
	Reverse       *bool  `json:"reverse,omitempty"`
	Keys          *bool  `json:"keys,omitempty"`
	Values        *bool  `json:"values,omitempty"`
	Limit         *int64 `json:"limit,omitempty"`
	FillCache     *bool  `json:"fillCache,omitempty"`
	KeyEncoding   *string `json:"keyEncoding,omitempty"`
	ValueEncoding *string `json:"valueEncoding,omitempty"`
}

// BlobsGetIn is the argument DTO for ["blobs","get"].
type BlobsGetIn struct {
	Key  string `json:"key"`
	Size *int64 `json:"size,omitempty"`
	Max  *int64 `json:"max,omitempty"`
}

// TanglesThread is the argument DTO for ["tangles","thread"].
type TanglesThread struct {
	Root    string `json:"root"`
	Keys    *bool  `json:"keys,omitempty"`
	Values  *bool  `json:"values,omitempty"`
	Limit   *int64 `json:"limit,omitempty"`
	Private *bool  `json:"private,omitempty"`
}

// SubsetQueryOp names the operator of a SubsetQuery node.
type SubsetQueryOp string

const (
	SubsetQueryOpType   SubsetQueryOp = "type"
	SubsetQueryOpAuthor SubsetQueryOp = "author"
	SubsetQueryOpAnd    SubsetQueryOp = "and"
	SubsetQueryOpOr     SubsetQueryOp = "or"
)

// SubsetQuery is the tagged-union argument DTO for
// ["partialReplication","getSubset"] (spec §6). Exactly one of String,
// Feed, or Args is populated, selected by Op.
type SubsetQuery struct {
	Op     SubsetQueryOp  `json:"op"`
	String string         `json:"string,omitempty"`
	Feed   string         `json:"feed,omitempty"`
	Args   []*SubsetQuery `json:"args,omitempty"`
}

// SubsetQueryOptions is the optional second argument to getSubset.
type SubsetQueryOptions struct {
	Limit *int64 `json:"limit,omitempty"`
}

// FriendsHops is the argument DTO for ["friends","hops"].
type FriendsHops struct {
	Start *string `json:"start,omitempty"`
	Max   *int64  `json:"max,omitempty"`
}

// RelationshipQuery is the argument DTO for ["friends","isFollowing"] and
// ["friends","isBlocking"].
type RelationshipQuery struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

// InviteCreateIn is the argument DTO for ["invite","create"].
type InviteCreateIn struct {
	Uses uint16 `json:"uses"`
}

// WhoAmIOut is the response DTO for ["whoami"].
type WhoAmIOut struct {
	ID string `json:"id"`
}

// LatestOut is one entry of the per-author sequence snapshot returned by
// ["latest"].
type LatestOut struct {
	ID       string  `json:"id"`
	Sequence int64   `json:"sequence"`
	TS       float64 `json:"ts"`
}

// ErrorOut is the response DTO shape for an RPC-level error.
type ErrorOut struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

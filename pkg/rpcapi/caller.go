package rpcapi

import (
	"encoding/json"
	"fmt"

	"github.com/WebFirstLanguage/ssbnet/pkg/wire"
)

// maxBlobChunk is the per-frame limit for blobs.get binary chunks (spec §4.7:
// "each <= 65536 bytes").
const maxBlobChunk = 65536

// Caller is a typed wrapper over a wire.Muxer: each method below binds a
// selector path and call style and returns the assigned request number, the
// same split the teacher's control.Server keeps between request decoding and
// result encoding, mirrored here for the outbound half of the call.
type Caller struct {
	mux *wire.Muxer
}

// NewCaller wraps an already-established muxer.
func NewCaller(mux *wire.Muxer) *Caller {
	return &Caller{mux: mux}
}

func (c *Caller) call(selector []string, style wire.CallStyle, args interface{}) (int32, error) {
	return c.mux.SendRequest(selector, style, args, nil)
}

// WhoAmI calls ["whoami"].
func (c *Caller) WhoAmI() (int32, error) {
	return c.call([]string{"whoami"}, wire.StyleAsync, struct{}{})
}

// Get calls ["get"] with a message id.
func (c *Caller) Get(msgID string) (int32, error) {
	return c.call([]string{"get"}, wire.StyleAsync, msgID)
}

// CreateHistoryStream calls ["createHistoryStream"].
func (c *Caller) CreateHistoryStream(in CreateHistoryStreamIn) (int32, error) {
	return c.call([]string{"createHistoryStream"}, wire.StyleSource, in)
}

// CreateFeedStream calls ["createFeedStream"] with a uint64-keyed cursor.
func (c *Caller) CreateFeedStream(in CreateStreamIn[uint64]) (int32, error) {
	return c.call([]string{"createFeedStream"}, wire.StyleSource, in)
}

// Latest calls ["latest"].
func (c *Caller) Latest() (int32, error) {
	return c.call([]string{"latest"}, wire.StyleSource, struct{}{})
}

// Publish calls ["publish"] with a content value (see pkg/typedcontent for
// the concrete message shapes this carries).
func (c *Caller) Publish(content interface{}) (int32, error) {
	return c.call([]string{"publish"}, wire.StyleAsync, content)
}

// PrivatePublish calls ["private","publish"] with the tuple
// (content, recipients); the two values become the two-element args array,
// reusing the args/opts slot pkg/wire.Muxer.SendRequest already appends for
// optional trailing arguments.
func (c *Caller) PrivatePublish(content interface{}, recipients []string) (int32, error) {
	return c.mux.SendRequest([]string{"private", "publish"}, wire.StyleAsync, content, recipients)
}

// BlobsGet calls ["blobs","get"].
func (c *Caller) BlobsGet(in BlobsGetIn) (int32, error) {
	return c.call([]string{"blobs", "get"}, wire.StyleSource, in)
}

// BlobsCreateWants calls ["blobs","createWants"].
func (c *Caller) BlobsCreateWants() (int32, error) {
	return c.call([]string{"blobs", "createWants"}, wire.StyleSource, struct{}{})
}

// FriendsBlocks calls ["friends","blocks"].
func (c *Caller) FriendsBlocks() (int32, error) {
	return c.call([]string{"friends", "blocks"}, wire.StyleSource, struct{}{})
}

// FriendsHops calls ["friends","hops"].
func (c *Caller) FriendsHops(in FriendsHops) (int32, error) {
	return c.call([]string{"friends", "hops"}, wire.StyleSource, in)
}

// FriendsIsFollowing calls ["friends","isFollowing"].
func (c *Caller) FriendsIsFollowing(q RelationshipQuery) (int32, error) {
	return c.call([]string{"friends", "isFollowing"}, wire.StyleAsync, q)
}

// FriendsIsBlocking calls ["friends","isBlocking"].
func (c *Caller) FriendsIsBlocking(q RelationshipQuery) (int32, error) {
	return c.call([]string{"friends", "isBlocking"}, wire.StyleAsync, q)
}

// PartialReplicationGetSubset calls ["partialReplication","getSubset"] with
// the tuple (query, options?); options is omitted from the args array when
// nil (spec §6 "skip-if-none").
func (c *Caller) PartialReplicationGetSubset(q SubsetQuery, opts *SubsetQueryOptions) (int32, error) {
	var optsArg interface{}
	if opts != nil {
		optsArg = opts
	}
	return c.mux.SendRequest([]string{"partialReplication", "getSubset"}, wire.StyleSource, q, optsArg)
}

// InviteCreate calls ["invite","create"].
func (c *Caller) InviteCreate(uses uint16) (int32, error) {
	return c.call([]string{"invite", "create"}, wire.StyleAsync, InviteCreateIn{Uses: uses})
}

// InviteUse calls ["invite","use"].
func (c *Caller) InviteUse(code string) (int32, error) {
	return c.call([]string{"invite", "use"}, wire.StyleAsync, code)
}

// NamesGet calls ["names","get"].
func (c *Caller) NamesGet(id string) (int32, error) {
	return c.call([]string{"names", "get"}, wire.StyleAsync, id)
}

// NamesGetImageFor calls ["names","getImageFor"].
func (c *Caller) NamesGetImageFor(id string) (int32, error) {
	return c.call([]string{"names", "getImageFor"}, wire.StyleAsync, id)
}

// NamesGetSignifier calls ["names","getSignifier"].
func (c *Caller) NamesGetSignifier(id string) (int32, error) {
	return c.call([]string{"names", "getSignifier"}, wire.StyleAsync, id)
}

// TanglesThread calls ["tangles","thread"].
func (c *Caller) TanglesThread(in TanglesThread) (int32, error) {
	return c.call([]string{"tangles", "thread"}, wire.StyleSource, in)
}

// ResSendJSON is a server-side "_res_send" helper (spec §4.7): it encodes v
// as JSON and sends it as an async response for reqNo.
func (c *Caller) ResSendJSON(reqNo int32, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpcapi: encode response: %w", err)
	}
	return c.mux.SendResponse(reqNo, wire.StyleAsync, wire.BodyJSON, body)
}

// ResSendStreamJSON is a server-side helper for one element of a streamed
// (source-style) response.
func (c *Caller) ResSendStreamJSON(reqNo int32, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpcapi: encode stream element: %w", err)
	}
	return c.mux.SendResponse(reqNo, wire.StyleSource, wire.BodyJSON, body)
}

// ResSendBlobChunks chunks data into frames of at most maxBlobChunk bytes
// for a ["blobs","get"] response and terminates with stream EOF, per
// spec §4.7's "server chunks at <= 65536 bytes per frame ... last chunk
// may be smaller".
func (c *Caller) ResSendBlobChunks(reqNo int32, data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > maxBlobChunk {
			n = maxBlobChunk
		}
		if err := c.mux.SendResponse(reqNo, wire.StyleSource, wire.BodyBinary, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return c.mux.SendStreamEOF(reqNo)
}

// ResSendError is the server-side counterpart that surfaces a call failure.
func (c *Caller) ResSendError(reqNo int32, style wire.CallStyle, message string) error {
	return c.mux.SendError(reqNo, style, message)
}

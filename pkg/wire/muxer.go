package wire

import (
	"encoding/json"
	"fmt"
	"io"
)

// CallStyle is the RPC calling convention of a method.
type CallStyle string

const (
	StyleAsync  CallStyle = "async"
	StyleSource CallStyle = "source"
	StyleDuplex CallStyle = "duplex"
)

// RequestBody is the JSON shape of an outbound call, spec §4.6 "Send request".
type RequestBody struct {
	Name []string      `json:"name"`
	Type CallStyle     `json:"type"`
	Args []interface{} `json:"args"`
}

// errorBody is the JSON shape of an error frame's body.
type errorBody struct {
	Name    string `json:"name"`
	Stack   string `json:"stack"`
	Message string `json:"message"`
}

// Kind identifies which variant of RecvMsg was produced by Recv.
type Kind int

const (
	KindRpcRequest Kind = iota
	KindOtherRequest
	KindRpcResponse
	KindErrorResponse
	KindCancelStreamRequest
	KindCancelStreamResponse
)

// RecvMsg is the classified result of receiving one frame, per the
// dispatch table in spec §4.6 "Receive".
type RecvMsg struct {
	Kind     Kind
	ReqNo    int32 // always positive: the call this message concerns
	Request  *RequestBody
	BodyType BodyType
	Bytes    []byte
	Message  string // populated for KindErrorResponse
}

// Muxer is one RPC connection's framing state: the underlying
// already-encrypted transport stream and the monotonic request counter
// described in spec §4.6 ("one monotonic request counter next_req >= 1; no
// other mutable state beyond the underlying transport").
type Muxer struct {
	rw      io.ReadWriter
	nextReq int32
}

// NewMuxer wraps an already-authenticated duplex stream (e.g. a box-stream
// transport connection) in the RPC frame muxer.
func NewMuxer(rw io.ReadWriter) *Muxer {
	return &Muxer{rw: rw, nextReq: 1}
}

// SendRequest allocates a fresh request number and transmits a call frame
// for the named method. args is encoded as the JSON args array, with opts
// appended only when non-nil (spec §4.6: "opts omitted when absent").
func (m *Muxer) SendRequest(name []string, style CallStyle, args interface{}, opts interface{}) (int32, error) {
	reqNo := m.nextReq
	m.nextReq++

	argList := []interface{}{args}
	if opts != nil {
		argList = append(argList, opts)
	}
	body, err := json.Marshal(RequestBody{Name: name, Type: style, Args: argList})
	if err != nil {
		return 0, fmt.Errorf("wire: encode request: %w", err)
	}

	h := Header{
		IsStream:     style != StyleAsync,
		IsEndOrError: false,
		BodyType:     BodyJSON,
		ReqNo:        reqNo,
	}
	if err := WriteFrame(m.rw, h, body); err != nil {
		return 0, err
	}
	return reqNo, nil
}

// SendResponse transmits a response frame for reqNo, whose sign is flipped
// onto the wire per spec §4.6 "Send response".
func (m *Muxer) SendResponse(reqNo int32, style CallStyle, bodyType BodyType, body []byte) error {
	h := Header{
		IsStream:     style != StyleAsync,
		IsEndOrError: false,
		BodyType:     bodyType,
		ReqNo:        -reqNo,
	}
	return WriteFrame(m.rw, h, body)
}

// SendStreamEOF signals the terminal frame of a streaming response
// (spec §4.6 "Send stream EOF").
func (m *Muxer) SendStreamEOF(reqNo int32) error {
	h := Header{
		IsStream:     true,
		IsEndOrError: true,
		BodyType:     BodyJSON,
		ReqNo:        -reqNo,
	}
	return WriteFrame(m.rw, h, []byte("true"))
}

// SendError transmits an error frame for reqNo (spec §4.6 "Send error").
func (m *Muxer) SendError(reqNo int32, style CallStyle, message string) error {
	body, err := json.Marshal(errorBody{Name: "Error", Stack: "", Message: message})
	if err != nil {
		return fmt.Errorf("wire: encode error body: %w", err)
	}
	h := Header{
		IsStream:     style != StyleAsync,
		IsEndOrError: true,
		BodyType:     BodyUTF8,
		ReqNo:        -reqNo,
	}
	return WriteFrame(m.rw, h, body)
}

// SendCancelStream is transmitted by the call's original initiator to ask
// the responder to stop producing further frames for reqNo (spec §4.6
// "Send cancel stream"). It reuses the original positive request number,
// matching the reference client's send_cancel_stream; Recv recognizes this
// shape (positive req_no, is_stream and is_end_or_error both set) as
// KindCancelStreamRequest rather than treating it as a fresh call.
func (m *Muxer) SendCancelStream(reqNo int32) error {
	h := Header{
		IsStream:     true,
		IsEndOrError: true,
		BodyType:     BodyJSON,
		ReqNo:        reqNo,
	}
	return WriteFrame(m.rw, h, []byte("true"))
}

// Close invokes the underlying transport's goodbye by closing it, if it
// supports io.Closer.
func (m *Muxer) Close() error {
	if c, ok := m.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Recv reads and classifies one frame per the dispatch table in spec §4.6.
func (m *Muxer) Recv() (RecvMsg, error) {
	f, err := ReadFrame(m.rw)
	if err != nil {
		return RecvMsg{}, err
	}
	h := f.Header

	switch {
	case h.ReqNo > 0 && h.IsStream && h.IsEndOrError:
		return RecvMsg{Kind: KindCancelStreamRequest, ReqNo: h.ReqNo}, nil

	case h.ReqNo > 0:
		var req RequestBody
		if err := json.Unmarshal(f.Body, &req); err == nil {
			return RecvMsg{Kind: KindRpcRequest, ReqNo: h.ReqNo, Request: &req}, nil
		}
		return RecvMsg{Kind: KindOtherRequest, ReqNo: h.ReqNo, BodyType: h.BodyType, Bytes: f.Body}, nil

	case h.ReqNo < 0 && h.IsEndOrError && h.IsStream:
		return RecvMsg{Kind: KindCancelStreamResponse, ReqNo: -h.ReqNo}, nil

	case h.ReqNo < 0 && h.IsEndOrError:
		var e errorBody
		if err := json.Unmarshal(f.Body, &e); err != nil {
			return RecvMsg{}, fmt.Errorf("wire: decode error body: %w", err)
		}
		return RecvMsg{Kind: KindErrorResponse, ReqNo: -h.ReqNo, Message: e.Message}, nil

	case h.ReqNo < 0:
		return RecvMsg{Kind: KindRpcResponse, ReqNo: -h.ReqNo, BodyType: h.BodyType, Bytes: f.Body}, nil

	default:
		return RecvMsg{}, NewError(ErrInvalidBodyType, "req_no must not be zero")
	}
}

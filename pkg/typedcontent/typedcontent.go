// Package typedcontent implements the tagged content shapes a feed entry's
// "content" field commonly carries — post, vote, contact, about, channel and
// pub — so pkg/friends and pkg/names have something concrete to derive
// their state from and so publish() has a realistic typed argument (§9's
// design note: "layer typed views on top via tagged deserialization"). These
// shapes are feed content, not protocol framing: spec.md itself treats
// message content as opaque JSON, so nothing here changes the signing or
// hashing path in pkg/message/pkg/canonjson.
package typedcontent

import (
	"fmt"

	"github.com/WebFirstLanguage/ssbnet/pkg/canonjson"
)

// Error reports a malformed typed-content value.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("typedcontent: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

var (
	ErrMissingType   = "MissingType"
	ErrUnknownType   = "UnknownType"
	ErrMissingField  = "MissingField"
	ErrWrongKind     = "WrongKind"
)

// Content is any of the typed message shapes; ToValue renders it as the
// canonjson.Value to hand to pkg/message.Sign as the entry's content.
type Content interface {
	ToValue() canonjson.Value
	TypeName() string
}

// --- shared sub-shapes ---------------------------------------------------

// Mention is a text-range or free-standing reference to another feed id.
type Mention struct {
	Link string
	Name *string
}

func (m Mention) toValue() canonjson.Value {
	pairs := []canonjson.Pair{canonjson.P("link", canonjson.String(m.Link))}
	if m.Name != nil {
		pairs = append(pairs, canonjson.P("name", canonjson.String(*m.Name)))
	}
	return canonjson.Object(pairs...)
}

func parseMention(v canonjson.Value) (Mention, error) {
	if v.Kind() == canonjson.KindString {
		return Mention{Link: v.Str()}, nil
	}
	link, ok := getString(v, "link")
	if !ok {
		return Mention{}, newError(ErrMissingField, "mention.link")
	}
	m := Mention{Link: link}
	if name, ok := getString(v, "name"); ok {
		m.Name = &name
	}
	return m, nil
}

// PubAddress describes a pub server announced in a "pub" message.
type PubAddress struct {
	Host *string
	Port uint16
	Key  string
}

func (a PubAddress) toValue() canonjson.Value {
	var pairs []canonjson.Pair
	if a.Host != nil {
		pairs = append(pairs, canonjson.P("host", canonjson.String(*a.Host)))
	}
	pairs = append(pairs, canonjson.P("port", canonjson.Int(int64(a.Port))))
	pairs = append(pairs, canonjson.P("key", canonjson.String(a.Key)))
	return canonjson.Object(pairs...)
}

func parsePubAddress(v canonjson.Value) (PubAddress, error) {
	a := PubAddress{}
	if host, ok := getString(v, "host"); ok {
		a.Host = &host
	}
	port, ok := v.Get("port")
	if !ok {
		return a, newError(ErrMissingField, "address.port")
	}
	a.Port = uint16(port.Float64())
	key, ok := getString(v, "key")
	if !ok {
		return a, newError(ErrMissingField, "address.key")
	}
	a.Key = key
	return a, nil
}

// VoteValue is the ssb-ql-1 untagged numeric-or-boolean vote value.
type VoteValue struct {
	numeric *int64
	boolean *bool
}

// NewVoteNumeric builds a numeric vote value (e.g. a 1..-1 "like" strength).
func NewVoteNumeric(n int64) VoteValue { return VoteValue{numeric: &n} }

// NewVoteBoolean builds a boolean vote value.
func NewVoteBoolean(b bool) VoteValue { return VoteValue{boolean: &b} }

func (v VoteValue) toValue() canonjson.Value {
	if v.boolean != nil {
		return canonjson.Bool(*v.boolean)
	}
	if v.numeric != nil {
		return canonjson.Int(*v.numeric)
	}
	return canonjson.Int(0)
}

func parseVoteValue(v canonjson.Value) (VoteValue, error) {
	switch v.Kind() {
	case canonjson.KindBool:
		return NewVoteBoolean(v.BoolValue()), nil
	case canonjson.KindNumber:
		return NewVoteNumeric(int64(v.Float64())), nil
	default:
		return VoteValue{}, newError(ErrWrongKind, "vote.value must be a number or boolean")
	}
}

// Vote is the body of a "vote" message's "vote" member.
type Vote struct {
	Link       string
	Value      VoteValue
	Expression *string
}

func (v Vote) toValue() canonjson.Value {
	pairs := []canonjson.Pair{
		canonjson.P("link", canonjson.String(v.Link)),
		canonjson.P("value", v.Value.toValue()),
	}
	if v.Expression != nil {
		pairs = append(pairs, canonjson.P("expression", canonjson.String(*v.Expression)))
	}
	return canonjson.Object(pairs...)
}

func parseVote(v canonjson.Value) (Vote, error) {
	link, ok := getString(v, "link")
	if !ok {
		return Vote{}, newError(ErrMissingField, "vote.link")
	}
	valueV, ok := v.Get("value")
	if !ok {
		return Vote{}, newError(ErrMissingField, "vote.value")
	}
	value, err := parseVoteValue(valueV)
	if err != nil {
		return Vote{}, err
	}
	out := Vote{Link: link, Value: value}
	if expr, ok := getString(v, "expression"); ok {
		out.Expression = &expr
	}
	return out, nil
}

// Image is the untagged "about" image shape: either a bare blob link, or a
// link plus descriptive metadata.
type Image struct {
	Link        string
	Complete    bool
	Name        *string
	Size        uint64
	Width       *uint32
	Height      *uint32
	ContentType string
}

func (img Image) toValue() canonjson.Value {
	if !img.Complete {
		return canonjson.String(img.Link)
	}
	pairs := []canonjson.Pair{canonjson.P("link", canonjson.String(img.Link))}
	if img.Name != nil {
		pairs = append(pairs, canonjson.P("name", canonjson.String(*img.Name)))
	}
	pairs = append(pairs, canonjson.P("size", canonjson.Int(int64(img.Size))))
	if img.Width != nil {
		pairs = append(pairs, canonjson.P("width", canonjson.Int(int64(*img.Width))))
	}
	if img.Height != nil {
		pairs = append(pairs, canonjson.P("height", canonjson.Int(int64(*img.Height))))
	}
	pairs = append(pairs, canonjson.P("type", canonjson.String(img.ContentType)))
	return canonjson.Object(pairs...)
}

func parseImage(v canonjson.Value) (Image, error) {
	if v.Kind() == canonjson.KindString {
		return Image{Link: v.Str()}, nil
	}
	link, ok := getString(v, "link")
	if !ok {
		return Image{}, newError(ErrMissingField, "image.link")
	}
	img := Image{Link: link, Complete: true}
	if name, ok := getString(v, "name"); ok {
		img.Name = &name
	}
	if size, ok := v.Get("size"); ok {
		img.Size = uint64(size.Float64())
	}
	if width, ok := v.Get("width"); ok {
		w := uint32(width.Float64())
		img.Width = &w
	}
	if height, ok := v.Get("height"); ok {
		h := uint32(height.Float64())
		img.Height = &h
	}
	if ct, ok := getString(v, "type"); ok {
		img.ContentType = ct
	}
	return img, nil
}

// DateTime is the "about" message's optional startDateTime member.
type DateTime struct {
	Epoch uint64
	TZ    string
}

func (d DateTime) toValue() canonjson.Value {
	return canonjson.Object(
		canonjson.P("epoch", canonjson.Int(int64(d.Epoch))),
		canonjson.P("tz", canonjson.String(d.TZ)),
	)
}

func parseDateTime(v canonjson.Value) (DateTime, error) {
	d := DateTime{}
	epoch, ok := v.Get("epoch")
	if !ok {
		return d, newError(ErrMissingField, "startDateTime.epoch")
	}
	d.Epoch = uint64(epoch.Float64())
	if tz, ok := getString(v, "tz"); ok {
		d.TZ = tz
	}
	return d, nil
}

// --- top-level typed messages --------------------------------------------

// Post is a "post" content body.
type Post struct {
	Text     string
	Mentions []Mention
}

func (p Post) TypeName() string { return "post" }

func (p Post) ToValue() canonjson.Value {
	pairs := []canonjson.Pair{
		canonjson.P("type", canonjson.String("post")),
		canonjson.P("text", canonjson.String(p.Text)),
	}
	if len(p.Mentions) > 0 {
		items := make([]canonjson.Value, len(p.Mentions))
		for i, m := range p.Mentions {
			items[i] = m.toValue()
		}
		pairs = append(pairs, canonjson.P("mentions", canonjson.Array(items...)))
	}
	return canonjson.Object(pairs...)
}

// VoteMsg is a "vote" content body (spec.md's distillation has no
// equivalent; the field is named VoteMsg to avoid colliding with the Vote
// sub-shape above).
type VoteMsg struct {
	Vote Vote
}

func (v VoteMsg) TypeName() string { return "vote" }

func (v VoteMsg) ToValue() canonjson.Value {
	return canonjson.Object(
		canonjson.P("type", canonjson.String("vote")),
		canonjson.P("vote", v.Vote.toValue()),
	)
}

// Contact is a "contact" content body recording a follow/block relationship.
type Contact struct {
	Contact    *string
	Blocking   *bool
	Following  *bool
	Autofollow *bool
}

func (c Contact) TypeName() string { return "contact" }

func (c Contact) ToValue() canonjson.Value {
	pairs := []canonjson.Pair{canonjson.P("type", canonjson.String("contact"))}
	if c.Contact != nil {
		pairs = append(pairs, canonjson.P("contact", canonjson.String(*c.Contact)))
	} else {
		pairs = append(pairs, canonjson.P("contact", canonjson.Null()))
	}
	if c.Blocking != nil {
		pairs = append(pairs, canonjson.P("blocking", canonjson.Bool(*c.Blocking)))
	}
	if c.Following != nil {
		pairs = append(pairs, canonjson.P("following", canonjson.Bool(*c.Following)))
	}
	if c.Autofollow != nil {
		pairs = append(pairs, canonjson.P("autofollow", canonjson.Bool(*c.Autofollow)))
	}
	return canonjson.Object(pairs...)
}

// About is an "about" content body describing another feed id (or channel).
type About struct {
	About         string
	Name          *string
	Title         *string
	Branch        *string
	Image         *Image
	Description   *string
	Location      *string
	StartDateTime *DateTime
}

func (a About) TypeName() string { return "about" }

func (a About) ToValue() canonjson.Value {
	pairs := []canonjson.Pair{
		canonjson.P("type", canonjson.String("about")),
		canonjson.P("about", canonjson.String(a.About)),
	}
	if a.Name != nil {
		pairs = append(pairs, canonjson.P("name", canonjson.String(*a.Name)))
	}
	if a.Title != nil {
		pairs = append(pairs, canonjson.P("title", canonjson.String(*a.Title)))
	}
	if a.Branch != nil {
		pairs = append(pairs, canonjson.P("branch", canonjson.String(*a.Branch)))
	}
	if a.Image != nil {
		pairs = append(pairs, canonjson.P("image", a.Image.toValue()))
	}
	if a.Description != nil {
		pairs = append(pairs, canonjson.P("description", canonjson.String(*a.Description)))
	}
	if a.Location != nil {
		pairs = append(pairs, canonjson.P("location", canonjson.String(*a.Location)))
	}
	if a.StartDateTime != nil {
		pairs = append(pairs, canonjson.P("startDateTime", a.StartDateTime.toValue()))
	}
	return canonjson.Object(pairs...)
}

// Channel is a "channel" content body recording a channel subscription.
type Channel struct {
	Channel    string
	Subscribed bool
}

func (c Channel) TypeName() string { return "channel" }

func (c Channel) ToValue() canonjson.Value {
	return canonjson.Object(
		canonjson.P("type", canonjson.String("channel")),
		canonjson.P("channel", canonjson.String(c.Channel)),
		canonjson.P("subscribed", canonjson.Bool(c.Subscribed)),
	)
}

// Pub is a "pub" content body announcing a pub server.
type Pub struct {
	Address *PubAddress
}

func (p Pub) TypeName() string { return "pub" }

func (p Pub) ToValue() canonjson.Value {
	pairs := []canonjson.Pair{canonjson.P("type", canonjson.String("pub"))}
	if p.Address != nil {
		pairs = append(pairs, canonjson.P("address", p.Address.toValue()))
	} else {
		pairs = append(pairs, canonjson.P("address", canonjson.Null()))
	}
	return canonjson.Object(pairs...)
}

// Parse dispatches on the "type" member to decode v into the concrete
// Content variant it names.
func Parse(v canonjson.Value) (Content, error) {
	typeName, ok := getString(v, "type")
	if !ok {
		return nil, newError(ErrMissingType, "content has no \"type\" member")
	}
	switch typeName {
	case "post":
		text, _ := getString(v, "text")
		p := Post{Text: text}
		if mentionsV, ok := v.Get("mentions"); ok {
			for _, item := range mentionsFromValue(mentionsV) {
				m, err := parseMention(item)
				if err != nil {
					return nil, err
				}
				p.Mentions = append(p.Mentions, m)
			}
		}
		return p, nil
	case "vote":
		voteV, ok := v.Get("vote")
		if !ok {
			return nil, newError(ErrMissingField, "vote")
		}
		vote, err := parseVote(voteV)
		if err != nil {
			return nil, err
		}
		return VoteMsg{Vote: vote}, nil
	case "contact":
		c := Contact{}
		if contact, ok := getString(v, "contact"); ok {
			c.Contact = &contact
		}
		if blocking, ok := getBool(v, "blocking"); ok {
			c.Blocking = &blocking
		}
		if following, ok := getBool(v, "following"); ok {
			c.Following = &following
		}
		if autofollow, ok := getBool(v, "autofollow"); ok {
			c.Autofollow = &autofollow
		}
		return c, nil
	case "about":
		about, ok := getString(v, "about")
		if !ok {
			return nil, newError(ErrMissingField, "about")
		}
		a := About{About: about}
		if name, ok := getString(v, "name"); ok {
			a.Name = &name
		}
		if title, ok := getString(v, "title"); ok {
			a.Title = &title
		}
		if branch, ok := getString(v, "branch"); ok {
			a.Branch = &branch
		}
		if imgV, ok := v.Get("image"); ok {
			img, err := parseImage(imgV)
			if err != nil {
				return nil, err
			}
			a.Image = &img
		}
		if description, ok := getString(v, "description"); ok {
			a.Description = &description
		}
		if location, ok := getString(v, "location"); ok {
			a.Location = &location
		}
		if dtV, ok := v.Get("startDateTime"); ok {
			dt, err := parseDateTime(dtV)
			if err != nil {
				return nil, err
			}
			a.StartDateTime = &dt
		}
		return a, nil
	case "channel":
		channel, _ := getString(v, "channel")
		subscribed, _ := getBool(v, "subscribed")
		return Channel{Channel: channel, Subscribed: subscribed}, nil
	case "pub":
		p := Pub{}
		if addrV, ok := v.Get("address"); ok && addrV.Kind() != canonjson.KindNull {
			addr, err := parsePubAddress(addrV)
			if err != nil {
				return nil, err
			}
			p.Address = &addr
		}
		return p, nil
	default:
		return nil, newError(ErrUnknownType, typeName)
	}
}

func mentionsFromValue(v canonjson.Value) []canonjson.Value {
	switch v.Kind() {
	case canonjson.KindArray:
		return v.Items()
	case canonjson.KindObject:
		var out []canonjson.Value
		for _, pair := range v.Members() {
			out = append(out, pair.Value)
		}
		return out
	default:
		return []canonjson.Value{v}
	}
}

func getString(v canonjson.Value, key string) (string, bool) {
	m, ok := v.Get(key)
	if !ok || m.Kind() != canonjson.KindString {
		return "", false
	}
	return m.Str(), true
}

func getBool(v canonjson.Value, key string) (bool, bool) {
	m, ok := v.Get(key)
	if !ok || m.Kind() != canonjson.KindBool {
		return false, false
	}
	return m.BoolValue(), true
}

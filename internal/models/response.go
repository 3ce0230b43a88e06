package models

import (
	"encoding/json"
	"log/slog"

	"github.com/myrjola/coachline/internal/errors"
)

// ResponseKind selects which structured response schema the language model is asked to fill.
type ResponseKind string

const (
	ResponseKindBase     ResponseKind = "base"
	ResponseKindCourse   ResponseKind = "course"
	ResponseKindWorkshop ResponseKind = "workshop"
	ResponseKindService  ResponseKind = "service"
	ResponseKindCoupon   ResponseKind = "coupon"
	ResponseKindPost     ResponseKind = "post"
)

// ResponseKinds lists every kind in schema priority order.
var ResponseKinds = []ResponseKind{ //nolint:gochecknoglobals // read-only table.
	ResponseKindCourse,
	ResponseKindWorkshop,
	ResponseKindService,
	ResponseKindCoupon,
	ResponseKindPost,
	ResponseKindBase,
}

var ErrUnknownResponseKind = errors.NewSentinel("unknown response kind")

// Response is a structured language-model answer. The concrete type is determined by Kind.
type Response interface {
	Kind() ResponseKind
	// Text is the conversational reply shown to the user. Empty text means the response is unusable.
	Text() string
}

// BaseResponse is the plain conversational reply every kind embeds.
type BaseResponse struct {
	AIResponseText   string   `json:"ai_response_text"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
}

func (r *BaseResponse) Kind() ResponseKind { return ResponseKindBase }
func (r *BaseResponse) Text() string       { return r.AIResponseText }

type CourseModule struct {
	Title   string   `json:"title"`
	Lessons []string `json:"lessons"`
}

type CourseOutline struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Modules     []CourseModule `json:"modules"`
}

type CourseResponse struct {
	BaseResponse
	Course CourseOutline `json:"course"`
}

func (r *CourseResponse) Kind() ResponseKind { return ResponseKindCourse }

type WorkshopPlan struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationMinutes int      `json:"duration_minutes"`
	Agenda          []string `json:"agenda"`
}

type WorkshopResponse struct {
	BaseResponse
	Workshop WorkshopPlan `json:"workshop"`
}

func (r *WorkshopResponse) Kind() ResponseKind { return ResponseKindWorkshop }

type ServiceOffer struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        string   `json:"price"`
	Deliverables []string `json:"deliverables"`
}

type ServiceResponse struct {
	BaseResponse
	Service ServiceOffer `json:"service"`
}

func (r *ServiceResponse) Kind() ResponseKind { return ResponseKindService }

type CouponOffer struct {
	Code            string `json:"code"`
	Description     string `json:"description"`
	DiscountPercent int    `json:"discount_percent"`
	ValidDays       int    `json:"valid_days"`
}

type CouponResponse struct {
	BaseResponse
	Coupon CouponOffer `json:"coupon"`
}

func (r *CouponResponse) Kind() ResponseKind { return ResponseKindCoupon }

type PostDraft struct {
	Platform string   `json:"platform"`
	Headline string   `json:"headline"`
	Body     string   `json:"body"`
	Hashtags []string `json:"hashtags"`
}

type PostResponse struct {
	BaseResponse
	Post PostDraft `json:"post"`
}

func (r *PostResponse) Kind() ResponseKind { return ResponseKindPost }

// NewResponse returns an empty response value of the given kind, ready for decoding.
func NewResponse(kind ResponseKind) (Response, error) {
	switch kind {
	case ResponseKindBase:
		return &BaseResponse{}, nil //nolint:exhaustruct // decoded into.
	case ResponseKindCourse:
		return &CourseResponse{}, nil //nolint:exhaustruct // decoded into.
	case ResponseKindWorkshop:
		return &WorkshopResponse{}, nil //nolint:exhaustruct // decoded into.
	case ResponseKindService:
		return &ServiceResponse{}, nil //nolint:exhaustruct // decoded into.
	case ResponseKindCoupon:
		return &CouponResponse{}, nil //nolint:exhaustruct // decoded into.
	case ResponseKindPost:
		return &PostResponse{}, nil //nolint:exhaustruct // decoded into.
	default:
		return nil, errors.Wrap(ErrUnknownResponseKind, "new response", slog.String("kind", string(kind)))
	}
}

// DecodeResponse decodes JSON into the concrete response type for kind.
func DecodeResponse(kind ResponseKind, data []byte) (Response, error) {
	resp, err := NewResponse(kind)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(data, resp); err != nil {
		return nil, errors.Wrap(err, "decode response", slog.String("kind", string(kind)))
	}
	return resp, nil
}

// NewMessageMetadata encodes a response for storage in Message.Metadata.
func NewMessageMetadata(resp Response) (json.RawMessage, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "encode response")
	}
	metadata, err := json.Marshal(MessageMetadata{Kind: resp.Kind(), Response: payload})
	if err != nil {
		return nil, errors.Wrap(err, "encode message metadata")
	}
	return metadata, nil
}

// ResponseFromMetadata decodes the structured response stored in Message.Metadata.
func ResponseFromMetadata(metadata json.RawMessage) (Response, error) {
	var m MessageMetadata
	if err := json.Unmarshal(metadata, &m); err != nil {
		return nil, errors.Wrap(err, "decode message metadata")
	}
	return DecodeResponse(m.Kind, m.Response)
}

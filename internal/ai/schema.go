package ai

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

func str(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: description} //nolint:exhaustruct // scalar.
}

func strs(description string) jsonschema.Definition {
	return jsonschema.Definition{ //nolint:exhaustruct // array of scalars.
		Type:        jsonschema.Array,
		Description: description,
		Items:       &jsonschema.Definition{Type: jsonschema.String}, //nolint:exhaustruct // scalar.
	}
}

func integer(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Integer, Description: description} //nolint:exhaustruct // scalar.
}

// object builds a strict object schema where every property is required.
func object(properties map[string]jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{ //nolint:exhaustruct // object.
		Type:                 jsonschema.Object,
		Properties:           properties,
		Required:             slices.Sorted(maps.Keys(properties)),
		AdditionalProperties: false,
	}
}

func baseProperties() map[string]jsonschema.Definition {
	return map[string]jsonschema.Definition{
		"ai_response_text":  str("The conversational reply shown to the user."),
		"suggested_replies": strs("Short replies the user might send next."),
	}
}

func withVariant(name string, variant jsonschema.Definition) jsonschema.Definition {
	properties := baseProperties()
	properties[name] = variant
	return object(properties)
}

func definitionFor(kind models.ResponseKind) (jsonschema.Definition, error) {
	switch kind {
	case models.ResponseKindBase:
		return object(baseProperties()), nil
	case models.ResponseKindCourse:
		module := object(map[string]jsonschema.Definition{
			"title":   str("Module title."),
			"lessons": strs("Lesson titles in order."),
		})
		return withVariant("course", object(map[string]jsonschema.Definition{
			"title":       str("Course title."),
			"description": str("One paragraph course description."),
			"modules":     {Type: jsonschema.Array, Items: &module}, //nolint:exhaustruct // array.
		})), nil
	case models.ResponseKindWorkshop:
		return withVariant("workshop", object(map[string]jsonschema.Definition{
			"title":            str("Workshop title."),
			"description":      str("What participants get out of it."),
			"duration_minutes": integer("Total length in minutes."),
			"agenda":           strs("Agenda items in order."),
		})), nil
	case models.ResponseKindService:
		return withVariant("service", object(map[string]jsonschema.Definition{
			"name":         str("Service name."),
			"description":  str("What the service includes."),
			"price":        str("Suggested price with currency."),
			"deliverables": strs("Concrete deliverables."),
		})), nil
	case models.ResponseKindCoupon:
		return withVariant("coupon", object(map[string]jsonschema.Definition{
			"code":             str("Coupon code in upper case."),
			"description":      str("Who the coupon is for."),
			"discount_percent": integer("Discount in percent."),
			"valid_days":       integer("How many days the coupon is valid."),
		})), nil
	case models.ResponseKindPost:
		return withVariant("post", object(map[string]jsonschema.Definition{
			"platform": str("Social platform the post is written for."),
			"headline": str("Hook or headline."),
			"body":     str("Post body."),
			"hashtags": strs("Hashtags without the # sign."),
		})), nil
	default:
		return jsonschema.Definition{}, errors.Wrap(models.ErrUnknownResponseKind, "build schema", //nolint:exhaustruct // error.
			slog.String("kind", string(kind)))
	}
}

// SchemaFor returns the strict JSON schema response format for kind.
func SchemaFor(kind models.ResponseKind) (openai.ChatCompletionResponseFormatJSONSchema, error) {
	definition, err := definitionFor(kind)
	if err != nil {
		return openai.ChatCompletionResponseFormatJSONSchema{}, err //nolint:exhaustruct // error.
	}
	return openai.ChatCompletionResponseFormatJSONSchema{
		Name:        string(kind) + "_response",
		Description: "Structured coach response of kind " + string(kind),
		Schema:      &definition,
		Strict:      true,
	}, nil
}

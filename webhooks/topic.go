package webhooks

import (
	"strings"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/mapping"
	"github.com/tidwall/gjson"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Topic is a parsed "<resource>/<action>" delivery topic. Resource is empty
// for topics this pipeline does not handle.
type Topic struct {
	Raw      string
	Resource core.ResourceKind
	Action   string
}

func ParseTopic(raw string) Topic {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	topic := Topic{Raw: normalized}
	resource, action, ok := strings.Cut(normalized, "/")
	if !ok {
		return topic
	}
	kind, err := core.ParseResourceKind(resource)
	if err != nil {
		return topic
	}
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete:
		topic.Resource = kind
		topic.Action = action
	}
	return topic
}

func (t Topic) Known() bool {
	return t.Resource != "" && t.Action != ""
}

func (t Topic) IsDelete() bool {
	return t.Action == ActionDelete
}

// Payload is the decoded body of a delivery, one variant per topic family.
type Payload interface {
	topic() Topic
}

type ProductUpsert struct {
	Topic   Topic
	Product core.ProductSnapshot
}

type ProductDelete struct {
	Topic      Topic
	ExternalID string
}

type CollectionUpsert struct {
	Topic      Topic
	Collection core.CollectionSnapshot
}

type CollectionDelete struct {
	Topic      Topic
	ExternalID string
}

// Unknown is a well-formed delivery for a topic that is acknowledged and
// otherwise ignored.
type Unknown struct {
	Topic    Topic
	EntityID string
}

func (p ProductUpsert) topic() Topic    { return p.Topic }
func (p ProductDelete) topic() Topic    { return p.Topic }
func (p CollectionUpsert) topic() Topic { return p.Topic }
func (p CollectionDelete) topic() Topic { return p.Topic }
func (p Unknown) topic() Topic          { return p.Topic }

// DecodePayload validates the body as JSON and maps it according to topic.
// Structurally invalid bodies fail with a mapping error.
func DecodePayload(topic Topic, body []byte, mapper mapping.Mapper) (Payload, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.MappingError(nil, "webhooks: payload is not valid JSON", map[string]any{"topic": topic.Raw})
	}
	if !topic.Known() {
		return Unknown{Topic: topic, EntityID: gjson.GetBytes(body, "id").String()}, nil
	}

	switch topic.Resource {
	case core.ResourceProducts:
		if topic.IsDelete() {
			id, err := mapper.DeletedID(mapping.TypeProduct, body)
			if err != nil {
				return nil, err
			}
			return ProductDelete{Topic: topic, ExternalID: id}, nil
		}
		product, err := mapper.ProductFromWebhook(body)
		if err != nil {
			return nil, err
		}
		return ProductUpsert{Topic: topic, Product: product}, nil
	case core.ResourceCollections:
		if topic.IsDelete() {
			id, err := mapper.DeletedID(mapping.TypeCollection, body)
			if err != nil {
				return nil, err
			}
			return CollectionDelete{Topic: topic, ExternalID: id}, nil
		}
		collection, err := mapper.CollectionFromWebhook(body)
		if err != nil {
			return nil, err
		}
		return CollectionUpsert{Topic: topic, Collection: collection}, nil
	}
	return Unknown{Topic: topic}, nil
}

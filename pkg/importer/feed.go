package importer

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/openfed/manage/pkg/model"
)

// FeedEntity is one EntityDescriptor pulled out of an aggregate feed. Data is
// nil when the entity could not be mapped to a service provider; Reason then
// says why.
type FeedEntity struct {
	EntityID string
	Data     map[string]interface{}
	Reason   string
}

type entitiesDescriptorXML struct {
	XMLName  xml.Name                `xml:"EntitiesDescriptor"`
	Nested   []entitiesDescriptorXML `xml:"EntitiesDescriptor"`
	Entities []entityDescriptorXML   `xml:"EntityDescriptor"`
}

// FetchFeed downloads an aggregate feed and maps every contained entity to
// the service provider attribute tree. A transport or top-level parse
// failure fails the whole fetch; per-entity mapping problems are reported on
// the entity itself.
func (c *Client) FetchFeed(ctx context.Context, url string) ([]FeedEntity, error) {
	doc, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseFeed(doc)
}

// ParseFeed parses an EntitiesDescriptor aggregate, descending into nested
// aggregates.
func ParseFeed(doc []byte) ([]FeedEntity, error) {
	var feed entitiesDescriptorXML
	if err := xml.Unmarshal(doc, &feed); err != nil {
		return nil, fmt.Errorf("parsing metadata feed: %w", err)
	}
	return collectEntities(&feed), nil
}

func collectEntities(feed *entitiesDescriptorXML) []FeedEntity {
	var entities []FeedEntity
	for i := range feed.Entities {
		descriptor := &feed.Entities[i]
		entity := FeedEntity{EntityID: descriptor.EntityID}
		if descriptor.SPSSODescriptor == nil {
			entity.Reason = "no SPSSODescriptor"
		} else if data, err := mapDescriptor(descriptor, model.ServiceProvider); err != nil {
			entity.Reason = err.Error()
		} else {
			entity.Data = data
		}
		entities = append(entities, entity)
	}
	for i := range feed.Nested {
		entities = append(entities, collectEntities(&feed.Nested[i])...)
	}
	return entities
}

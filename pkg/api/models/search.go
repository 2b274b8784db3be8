// Package models defines API request/response data structures.
package models

import (
	"time"

	"github.com/goclaw/recall/pkg/filter"
	"github.com/goclaw/recall/pkg/search"
)

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	// Query is the free text to search for.
	Query string `json:"query" validate:"max=10000" example:"grocery list"`

	// Limit caps the number of results returned.
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=1000" example:"20"`

	// Offset skips results for pagination.
	Offset int `json:"offset,omitempty" validate:"omitempty,min=0" example:"0"`

	// Filters are strategy-specific key/value constraints.
	Filters map[string]any `json:"filters,omitempty"`

	// Sort overrides the default ordering.
	Sort *SortRequest `json:"sort,omitempty"`

	// FilterExpression is applied to the merged results.
	FilterExpression string `json:"filter_expression,omitempty" validate:"max=4096" example:"importance >= 0.5"`

	// FilterTemplate expands a named filter template; it is ANDed with
	// FilterExpression.
	FilterTemplate *TemplateRequest `json:"filter_template,omitempty"`

	// Context carries caller context such as session or user ids.
	Context map[string]any `json:"context,omitempty"`
}

// TemplateRequest names a filter template and its arguments.
type TemplateRequest struct {
	Name string            `json:"name" validate:"required,max=128" example:"high_confidence"`
	Args map[string]string `json:"args,omitempty"`
}

// TemplateListResponse lists the registered filter templates.
type TemplateListResponse struct {
	Templates []filter.Template `json:"templates"`
	Total     int               `json:"total"`
}

// SortRequest selects a sort field and direction.
type SortRequest struct {
	Field     string `json:"field" validate:"required"`
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=asc desc"`
}

// ToQuery converts the request to a search.Query.
func (r SearchRequest) ToQuery() search.Query {
	q := search.Query{
		Text:             r.Query,
		Limit:            r.Limit,
		Offset:           r.Offset,
		Filters:          r.Filters,
		FilterExpression: r.FilterExpression,
		Context:          r.Context,
	}
	if r.FilterTemplate != nil {
		q.FilterTemplate = &search.TemplateRef{Name: r.FilterTemplate.Name, Args: r.FilterTemplate.Args}
	}
	if r.Sort != nil {
		dir := search.SortDirection(r.Sort.Direction)
		if dir == "" {
			dir = search.SortDesc
		}
		q.Sort = &search.SortSpec{Field: r.Sort.Field, Direction: dir}
	}
	return q
}

// SearchResponse is the result of a search.
type SearchResponse struct {
	// Results are the merged, filtered and paginated results.
	Results []search.Result `json:"results"`

	// Count is len(Results).
	Count int `json:"count"`

	// Strategy is set when a single strategy was requested.
	Strategy string `json:"strategy,omitempty"`

	// Took is the server-side search duration.
	Took time.Duration `json:"took_ns"`
}

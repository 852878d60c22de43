// Package linktree manages the curated list of promotional links shown on
// the storefront.
package linktree

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"storefeed/storage"
)

// ValidationError reports an invalid field. It matches storage.ErrInvalidInput.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("linktree: %s %s", e.Field, e.Msg)
}

// Is makes ValidationError match storage.ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == storage.ErrInvalidInput
}

// Input is the writable part of a link row.
type Input struct {
	Text        string `json:"text"`
	Href        string `json:"href"`
	Description string `json:"description"`
	// Order zero on create appends the row after the current last one.
	Order    int    `json:"order"`
	Active   bool   `json:"active"`
	Category string `json:"category"`
	// Tags and Photo are left unchanged on update when nil.
	Tags  []string `json:"tags,omitempty"`
	Photo *string  `json:"photo,omitempty"`
}

// Service validates input and delegates to a LinkRowStore.
type Service struct {
	store storage.LinkRowStore
}

// NewService creates a Service.
func NewService(store storage.LinkRowStore) *Service {
	return &Service{store: store}
}

// List returns rows ordered by order, then text. activeOnly filters out
// deactivated rows.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*storage.LinkRow, error) {
	rows, err := s.store.ListLinkRows(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return rows, nil
	}

	active := rows[:0]
	for _, r := range rows {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

// Get returns one row.
func (s *Service) Get(ctx context.Context, id string) (*storage.LinkRow, error) {
	return s.store.GetLinkRow(ctx, id)
}

// Create validates in and stores a new row.
func (s *Service) Create(ctx context.Context, in Input) (*storage.LinkRow, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	if in.Order == 0 {
		next, err := s.nextOrder(ctx)
		if err != nil {
			return nil, err
		}
		in.Order = next
	}

	row := &storage.LinkRow{
		Text:        in.Text,
		Href:        in.Href,
		Description: in.Description,
		Order:       in.Order,
		Active:      in.Active,
		Category:    in.Category,
		Tags:        in.Tags,
		Photo:       in.Photo,
	}
	if err := s.store.CreateLinkRow(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Update overwrites the row with the given id. It returns an error matching
// storage.ErrNotFound when the row does not exist.
func (s *Service) Update(ctx context.Context, id string, in Input) (*storage.LinkRow, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "id", Msg: "is required"}
	}
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	row, err := s.store.GetLinkRow(ctx, id)
	if err != nil {
		return nil, err
	}

	row.Text = in.Text
	row.Href = in.Href
	row.Description = in.Description
	row.Order = in.Order
	row.Active = in.Active
	row.Category = in.Category
	if in.Tags != nil {
		row.Tags = in.Tags
	}
	if in.Photo != nil {
		row.Photo = in.Photo
	}

	if err := s.store.UpdateLinkRow(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes the row with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Msg: "is required"}
	}
	return s.store.DeleteLinkRow(ctx, id)
}

func (s *Service) nextOrder(ctx context.Context) (int, error) {
	rows, err := s.store.ListLinkRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("linktree: next order: %w", err)
	}
	highest := 0
	for _, r := range rows {
		highest = max(highest, r.Order)
	}
	return highest + 1, nil
}

func normalize(in Input) Input {
	in.Text = strings.TrimSpace(in.Text)
	in.Href = strings.TrimSpace(in.Href)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	return in
}

func validate(in Input) error {
	if in.Text == "" {
		return &ValidationError{Field: "text", Msg: "is required"}
	}
	if in.Href == "" {
		return &ValidationError{Field: "href", Msg: "is required"}
	}
	if err := validateHref(in.Href); err != nil {
		return err
	}
	if in.Order < 0 {
		return &ValidationError{Field: "order", Msg: "must be non-negative"}
	}
	for _, tag := range in.Tags {
		if strings.TrimSpace(tag) == "" {
			return &ValidationError{Field: "tags", Msg: "must not contain empty values"}
		}
	}
	return nil
}

// validateHref accepts absolute http(s) URLs and site-relative paths.
func validateHref(href string) error {
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return nil
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "href", Msg: "must be an http(s) URL or a path starting with /"}
	}
	return nil
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

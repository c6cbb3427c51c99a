package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"knowtree/internal/category"
	"knowtree/internal/models"
)

// maxBodyBytes caps request bodies; the largest legitimate body is a batch
// sort of every category.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// createRequest is the body of POST /categories. Name length is checked by
// the service after trimming.
type createRequest struct {
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description" validate:"max=500"`
	ParentID    *uuid.UUID `json:"parentId"`
	SortOrder   *int       `json:"sortOrder"`
}

// updateRequest is the body of PUT /categories/{id}. Absent fields are left
// untouched.
type updateRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description" validate:"omitempty,max=500"`
	ParentID    *uuid.UUID `json:"parentId"`
	SortOrder   *int       `json:"sortOrder"`
}

// sortRequest is one entry of the POST /categories/batch-sort body.
type sortRequest struct {
	ID        *uuid.UUID `json:"id" validate:"required"`
	SortOrder *int       `json:"sortOrder" validate:"required"`
}

// decode reads a JSON body into dst and validates it. Failures wrap
// category.ErrInvalidInput.
func decode(r *http.Request, dst any) error {
	if err := readJSON(r, dst); err != nil {
		return err
	}
	return check(validate.Struct(dst))
}

// readJSON strictly decodes the body: unknown fields are rejected so a
// misspelled key cannot be silently dropped.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", category.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON: %v", category.ErrInvalidInput, err)
	}
	return nil
}

// decodeSortItems reads the batch sort body, a JSON array of sort items.
// Every item needs both an id and a sort order.
func decodeSortItems(r *http.Request) ([]models.SortItem, error) {
	var reqs []sortRequest
	if err := readJSON(r, &reqs); err != nil {
		return nil, err
	}
	items := make([]models.SortItem, 0, len(reqs))
	for i := range reqs {
		if err := check(validate.Struct(&reqs[i])); err != nil {
			return nil, err
		}
		items = append(items, models.SortItem{ID: *reqs[i].ID, SortOrder: *reqs[i].SortOrder})
	}
	return items, nil
}

// check turns validator failures into a readable ErrInvalidInput.
func check(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", category.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", category.ErrInvalidInput, strings.Join(msgs, "; "))
}

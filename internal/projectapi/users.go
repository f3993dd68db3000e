package projectapi

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// GetUserDetails loads a user record.
func (c *Client) GetUserDetails(ctx context.Context, userID int64) (*models.UserDetails, error) {
	var user models.UserDetails
	if err := c.getJSON(ctx, "users/{id}", fmt.Sprintf("users/%d", userID), nil, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		user.ID = userID
	}
	return &user, nil
}

// GetUserPreferences returns the user's preferences. Non-string values are rendered as JSON text.
func (c *Client) GetUserPreferences(ctx context.Context, userID int64) (models.UserPreferences, error) {
	raw := map[string]json.RawMessage{}
	if err := c.getJSON(ctx, "users/{id}/preferences", fmt.Sprintf("users/%d/preferences", userID), nil, &raw); err != nil {
		return nil, err
	}

	prefs := make(models.UserPreferences, len(raw))
	for key, value := range raw {
		var text string
		if err := json.Unmarshal(value, &text); err == nil {
			prefs[key] = text
			continue
		}
		prefs[key] = string(value)
	}
	return prefs, nil
}

// GetUserOrganizations lists the organizations a user belongs to.
func (c *Client) GetUserOrganizations(ctx context.Context, userID int64) ([]models.Organization, error) {
	return getList[models.Organization](ctx, c, "users/{id}/organizations", fmt.Sprintf("users/%d/organizations", userID), nil)
}

// GetUserRoles lists the roles a user holds in a course.
func (c *Client) GetUserRoles(ctx context.Context, userID int64, courseID string) ([]models.CourseRole, error) {
	query := url.Values{}
	query.Set("user_id", strconv.FormatInt(userID, 10))

	roles, err := getList[models.CourseRole](ctx, c, "courses/{id}/roles", fmt.Sprintf("courses/%s/roles", courseID), query)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].CourseID == "" {
			roles[i].CourseID = courseID
		}
	}
	return roles, nil
}

// MarkComplete posts a completion record. A 409 means the record already exists and is returned
// to the caller unchanged; use IsConflict to absorb it.
func (c *Client) MarkComplete(ctx context.Context, completion models.Completion) error {
	return c.postJSON(ctx, "courses/{id}/completions", fmt.Sprintf("courses/%s/completions", completion.CourseID), completion, nil)
}

// CompletionFilter narrows a completions listing.
type CompletionFilter struct {
	ContentID string
	UserIDs   []int64
	Stage     string
}

// Completions lazily yields every completion of a course, following next cursors until exhausted.
// Iteration stops at the first error, which is yielded with a zero completion.
func (c *Client) Completions(ctx context.Context, courseID string, filter CompletionFilter) iter.Seq2[models.Completion, error] {
	return func(yield func(models.Completion, error) bool) {
		query := url.Values{}
		if filter.ContentID != "" {
			query.Set("content_id", filter.ContentID)
		}
		if filter.Stage != "" {
			query.Set("stage", filter.Stage)
		}
		if len(filter.UserIDs) > 0 {
			ids := make([]string, 0, len(filter.UserIDs))
			for _, id := range filter.UserIDs {
				ids = append(ids, strconv.FormatInt(id, 10))
			}
			query.Set("user_id", strings.Join(ids, ","))
		}

		target := c.resolve(fmt.Sprintf("courses/%s/completions", courseID), query)
		for pages := 0; target != ""; pages++ {
			if pages >= maxListPages {
				yield(models.Completion{}, &APIError{Message: fmt.Sprintf("completions paging exceeded %d pages", maxListPages)})
				return
			}

			raw, err := c.send(ctx, http.MethodGet, "courses/{id}/completions", target, nil)
			if err != nil {
				yield(models.Completion{}, err)
				return
			}

			items, next, err := decodeList[models.Completion](raw)
			if err != nil {
				yield(models.Completion{}, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			target = ""
			if next != nil {
				target = c.followNext(*next)
			}
		}
	}
}

func (c *Client) followNext(next string) string {
	parsed, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	return c.baseURL.ResolveReference(parsed).String()
}

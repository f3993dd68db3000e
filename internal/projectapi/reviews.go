package projectapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// ReviewKind selects the review collection: teammates (peer) or other workgroups (workgroup).
type ReviewKind string

const (
	PeerReviews      ReviewKind = "peer_reviews"
	WorkgroupReviews ReviewKind = "workgroup_reviews"
)

// GetReviewItems lists the review items stored against a workgroup for one activity.
func (c *Client) GetReviewItems(ctx context.Context, kind ReviewKind, workgroupID int64, contentID string) ([]models.ReviewItem, error) {
	query := url.Values{}
	query.Set("content_id", contentID)

	endpoint := "workgroups/{id}/" + string(kind)
	return getList[models.ReviewItem](ctx, c, endpoint, fmt.Sprintf("workgroups/%d/%s", workgroupID, string(kind)), query)
}

// CreateReviewItem stores a new answer.
func (c *Client) CreateReviewItem(ctx context.Context, kind ReviewKind, item models.ReviewItem) (*models.ReviewItem, error) {
	var created models.ReviewItem
	if err := c.postJSON(ctx, string(kind), string(kind)+"/", item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateReviewItem replaces the answer of an existing item.
func (c *Client) UpdateReviewItem(ctx context.Context, kind ReviewKind, itemID int64, item models.ReviewItem) (*models.ReviewItem, error) {
	var updated models.ReviewItem
	if err := c.putJSON(ctx, string(kind)+"/{id}", fmt.Sprintf("%s/%d", string(kind), itemID), item, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteReviewItem removes an answer.
func (c *Client) DeleteReviewItem(ctx context.Context, kind ReviewKind, itemID int64) error {
	return c.deleteResource(ctx, string(kind)+"/{id}", fmt.Sprintf("%s/%d", string(kind), itemID))
}

package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Resource collection paths, relative to the base URL.
const (
	PathEnquiries     = "enquiries/"
	PathStudents      = "students/"
	PathCourses       = "courses/"
	PathBatches       = "batches/"
	PathEnrollments   = pathEnrollments
	PathAttendance    = pathAttendance
	PathReceipts      = "receipts/"
	PathCertificates  = "certificates/"
	PathNotifications = "notifications/"
	PathConversations = "conversations/"
	PathEvents        = "events/"
	PathStockItems    = "stock-items/"
	PathPayroll       = "payroll/"
	PathRoles         = "roles/"
	PathUsers         = "users/"
)

// Collection exposes conventional list/detail/create/update/delete calls on
// one resource path.
type Collection[T any] struct {
	client *Client
	path   string
}

// NewCollection binds T to path on c.
func NewCollection[T any](c *Client, path string) Collection[T] {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return Collection[T]{client: c, path: path}
}

func (col Collection[T]) item(id int64) string {
	return col.path + strconv.FormatInt(id, 10) + "/"
}

// List returns one page.
func (col Collection[T]) List(ctx context.Context, opts ListOptions) (Page[T], error) {
	var page Page[T]
	if err := col.client.do(ctx, http.MethodGet, col.path, opts.query(), nil, &page); err != nil {
		return Page[T]{}, err
	}
	return page, nil
}

// Count asks for the smallest page and reports the total count.
func (col Collection[T]) Count(ctx context.Context, filters url.Values) (int, error) {
	page, err := col.List(ctx, ListOptions{Page: 1, PageSize: 1, Filters: filters})
	if err != nil {
		return 0, err
	}
	return page.Count, nil
}

// Get fetches one item.
func (col Collection[T]) Get(ctx context.Context, id int64) (T, error) {
	var out T
	err := col.client.do(ctx, http.MethodGet, col.item(id), nil, nil, &out)
	return out, err
}

// Create posts in and decodes the created item.
func (col Collection[T]) Create(ctx context.Context, in any) (T, error) {
	var out T
	err := col.client.do(ctx, http.MethodPost, col.path, nil, in, &out)
	return out, err
}

// Update replaces item id with in.
func (col Collection[T]) Update(ctx context.Context, id int64, in any) (T, error) {
	var out T
	err := col.client.do(ctx, http.MethodPut, col.item(id), nil, in, &out)
	return out, err
}

// Delete removes item id.
func (col Collection[T]) Delete(ctx context.Context, id int64) error {
	return col.client.do(ctx, http.MethodDelete, col.item(id), nil, nil, nil)
}

// Typed collections used by the portal screens.

func (c *Client) Students() Collection[Resource] { return NewCollection[Resource](c, PathStudents) }

func (c *Client) Enquiries() Collection[Resource] { return NewCollection[Resource](c, PathEnquiries) }

func (c *Client) Courses() Collection[Resource] { return NewCollection[Resource](c, PathCourses) }

func (c *Client) Batches() Collection[Batch] { return NewCollection[Batch](c, PathBatches) }

func (c *Client) Enrollments() Collection[Enrollment] {
	return NewCollection[Enrollment](c, PathEnrollments)
}

func (c *Client) Receipts() Collection[Resource] { return NewCollection[Resource](c, PathReceipts) }

func (c *Client) Certificates() Collection[Resource] {
	return NewCollection[Resource](c, PathCertificates)
}

func (c *Client) Notifications() Collection[Resource] {
	return NewCollection[Resource](c, PathNotifications)
}

func (c *Client) Events() Collection[Resource] { return NewCollection[Resource](c, PathEvents) }

package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pawhaven/chatkit/internal/types"
)

const defaultTimeout = 15 * time.Second

// HistoryPage is the paginated message envelope returned by the history
// endpoint. Page numbering is server-side; local inserts never shift it.
type HistoryPage struct {
	Content    []types.Message `json:"content"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	TotalPages int             `json:"total_pages"`
	Last       bool            `json:"last"`
}

// Client talks to the rooms/history/unread REST collaborator with a
// bearer credential.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *log.Logger

	// OnAuthError is invoked on any 401/403 so the session collaborator
	// can force re-authentication.
	OnAuthError func(*types.AuthError)
}

func NewClient(baseURL, token string, logger *log.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        logger,
	}
}

// ListRooms fetches the full room list.
func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	var rooms []types.Room
	if err := c.get(ctx, "/rooms", &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// OpenForSubject gets or creates the room for an animal listing.
func (c *Client) OpenForSubject(ctx context.Context, subjectRef string) (types.Room, error) {
	var room types.Room
	if err := c.get(ctx, "/room/"+url.PathEscape(subjectRef), &room); err != nil {
		return types.Room{}, fmt.Errorf("open room for subject %q: %w", subjectRef, err)
	}
	return room, nil
}

// OpenRoom opens a room by id. The server resets its unread count as a
// side effect.
func (c *Client) OpenRoom(ctx context.Context, roomID string) (types.Room, error) {
	var room types.Room
	if err := c.get(ctx, "/rooms/"+url.PathEscape(roomID), &room); err != nil {
		return types.Room{}, fmt.Errorf("open room %q: %w", roomID, err)
	}
	return room, nil
}

// History loads one page of a room's message history, newest pages
// first.
func (c *Client) History(ctx context.Context, roomID string, page, size int) (HistoryPage, error) {
	path := "/history/" + url.PathEscape(roomID) + "?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(size)

	var envelope HistoryPage
	if err := c.get(ctx, path, &envelope); err != nil {
		if authErr, ok := asAuthError(err); ok {
			return HistoryPage{}, authErr
		}
		return HistoryPage{}, &types.HistoryFetchError{RoomID: roomID, Err: err}
	}
	return envelope, nil
}

// HideRoom soft-deletes a room for this user. The room is never
// physically removed server-side.
func (c *Client) HideRoom(ctx context.Context, roomID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(roomID))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hide room %q: %w", roomID, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return fmt.Errorf("hide room %q: %w", roomID, err)
	}
	return nil
}

// UnreadCount fetches the authoritative global unread total.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var total int
	if err := c.get(ctx, "/unread/count", &total); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return total, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		authErr := &types.AuthError{StatusCode: resp.StatusCode}
		if c.OnAuthError != nil {
			c.OnAuthError(authErr)
		}
		return authErr
	default:
		c.log.Printf("unexpected status %d from %s", resp.StatusCode, resp.Request.URL.Path)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func asAuthError(err error) (*types.AuthError, bool) {
	if authErr, ok := err.(*types.AuthError); ok {
		return authErr, true
	}
	return nil, false
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/startuphub/callhub/pkg/signaling"
)

// clientIDInjector is an http.RoundTripper that stamps every request with
// the caller's client id, so the server can route pending queues without a
// session store.
type clientIDInjector struct {
	clientID string
	next     http.RoundTripper
}

func (t *clientIDInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(clientIDHeader, t.clientID)
	return t.next.RoundTrip(req)
}

// Client implements signaling.Transport against a signaling Server over
// HTTP. It is stateless besides its identity; every call is a plain
// request/response exchange.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
}

var _ signaling.Transport = (*Client)(nil)

// NewClient creates a transport client identified by clientID, talking to
// the service at baseURL.
func NewClient(baseURL, clientID string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &clientIDInjector{
				clientID: clientID,
				next:     http.DefaultTransport,
			},
		},
		baseURL:  baseURL,
		clientID: clientID,
	}
}

func (c *Client) JoinRoom(ctx context.Context, roomID, userID, username string) error {
	return c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/join", JoinPayload{UserID: userID, Username: username})
}

func (c *Client) LeaveRoom(ctx context.Context, roomID, userID string) error {
	return c.post(ctx, "/rooms/"+url.PathEscape(roomID)+"/leave", LeavePayload{UserID: userID})
}

func (c *Client) SendOffer(ctx context.Context, offer webrtc.SessionDescription, receiverID string) error {
	return c.post(ctx, "/signals/offer", OfferPayload{ReceiverID: receiverID, Offer: offer})
}

func (c *Client) SendAnswer(ctx context.Context, answer webrtc.SessionDescription, receiverID string) error {
	return c.post(ctx, "/signals/answer", AnswerPayload{ReceiverID: receiverID, Answer: answer})
}

func (c *Client) SendICECandidate(ctx context.Context, candidate webrtc.ICECandidateInit, receiverID string) error {
	return c.post(ctx, "/signals/candidate", CandidatePayload{ReceiverID: receiverID, Candidate: candidate})
}

func (c *Client) PollOffers(ctx context.Context) ([]signaling.OfferEnvelope, error) {
	var resp OffersResponse
	if err := c.get(ctx, "/signals/offers", &resp); err != nil {
		return nil, err
	}
	return resp.Offers, nil
}

func (c *Client) PollAnswers(ctx context.Context) ([]signaling.AnswerEnvelope, error) {
	var resp AnswersResponse
	if err := c.get(ctx, "/signals/answers", &resp); err != nil {
		return nil, err
	}
	return resp.Answers, nil
}

func (c *Client) PollICECandidates(ctx context.Context) ([]signaling.CandidateEnvelope, error) {
	var resp CandidatesResponse
	if err := c.get(ctx, "/signals/candidates", &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

func (c *Client) PollParticipants(ctx context.Context, roomID string) ([]signaling.Participant, error) {
	var resp ParticipantsResponse
	path := "/rooms/" + url.PathEscape(roomID) + "/participants?user_id=" + url.QueryEscape(c.clientID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s responded with %s", path, resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s responded with %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

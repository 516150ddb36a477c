package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/hub"
	"github.com/prudhvinik1/whatsnote/internal/models"
	"github.com/prudhvinik1/whatsnote/internal/repositories"
	"github.com/prudhvinik1/whatsnote/internal/services"
)

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func (r *fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == account.Email {
			return errors.New("duplicate email")
		}
	}
	account.ID = uuid.New()
	account.CreatedAt = time.Now()
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeAccountRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*models.Device
}

func (r *fakeDeviceRepo) Create(_ context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	device.ID = uuid.New()
	device.CreatedAt = time.Now()
	r.devices[device.ID] = device
	return nil
}

func (r *fakeDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		return d, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeDeviceRepo) GetDevicesByAccountID(_ context.Context, accountID uuid.UUID) ([]*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Device
	for _, d := range r.devices {
		if d.AccountID == accountID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) Touch(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		now := time.Now()
		d.LastSeenAt = &now
	}
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func (r *fakeSessionRepo) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeSessionRepo) GetByAccountID(_ context.Context, accountID uuid.UUID) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Session
	for _, s := range r.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteAllForAccount(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.AccountID == accountID {
			delete(r.sessions, id)
		}
	}
	return nil
}

type fakePresenceRepo struct {
	mu       sync.Mutex
	presence map[uuid.UUID]*models.Presence
}

func (r *fakePresenceRepo) SetPresence(_ context.Context, p *models.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence[p.DeviceID] = p
	return nil
}

func (r *fakePresenceRepo) GetPresence(_ context.Context, deviceID uuid.UUID) (*models.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.presence[deviceID]; ok {
		return p, nil
	}
	return &models.Presence{DeviceID: deviceID, Status: string(models.StatusOffline)}, nil
}

func (r *fakePresenceRepo) DeletePresence(_ context.Context, deviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presence, deviceID)
	return nil
}

type fakeEventRepo struct {
	mu      sync.Mutex
	stored  []models.Event
	failing bool
	nextTS  int64
}

func (r *fakeEventRepo) Append(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("connection refused")
	}
	r.nextTS++
	event.ReceivedAt = r.nextTS
	if event.Type == models.EventEditNote {
		var kept []models.Event
		for _, e := range r.stored {
			if e.AccountID == event.AccountID && e.ItemID == event.ItemID && e.Type == models.EventEditNote {
				if e.EmittedAt > event.EmittedAt {
					return nil
				}
				continue
			}
			kept = append(kept, e)
		}
		r.stored = kept
	}
	r.stored = append(r.stored, *event)
	return nil
}

func (r *fakeEventRepo) QueryChangesSince(_ context.Context, accountID uuid.UUID, watermark int64) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.stored {
		if e.AccountID == accountID && e.ReceivedAt >= watermark {
			out = append(out, e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].EmittedAt < out[j-1].EmittedAt; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *fakeEventRepo) DeleteAllForAccount(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []models.Event
	for _, e := range r.stored {
		if e.AccountID != accountID {
			kept = append(kept, e)
		}
	}
	r.stored = kept
	return nil
}

type testEnv struct {
	server   *httptest.Server
	hub      *hub.Hub
	events   *fakeEventRepo
	sessions *fakeSessionRepo
	presence *fakePresenceRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	accounts := &fakeAccountRepo{accounts: make(map[uuid.UUID]*models.Account)}
	devices := &fakeDeviceRepo{devices: make(map[uuid.UUID]*models.Device)}
	sessions := &fakeSessionRepo{sessions: make(map[string]*models.Session)}
	presence := &fakePresenceRepo{presence: make(map[uuid.UUID]*models.Presence)}
	events := &fakeEventRepo{}

	pushHub := hub.New(zap.NewNop())
	auth := services.NewAuthService(accounts, devices, sessions, "test-secret", time.Hour)
	eventSvc := services.NewEventService(events, pushHub, zap.NewNop())

	srv := NewServer(auth, eventSvc, pushHub, presence, devices, 25*time.Millisecond, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, hub: pushHub, events: events, sessions: sessions, presence: presence}
}

type loggedInClient struct {
	env       *testEnv
	cookie    *http.Cookie
	accountID uuid.UUID
	deviceID  uuid.UUID
	sessionID string
}

func (e *testEnv) registerAndLogin(t *testing.T, email string) *loggedInClient {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": "correct-horse-battery"})
	resp, err := http.Post(e.server.URL+"/api/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(e.server.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the session cookie")

	return &loggedInClient{
		env:       e,
		cookie:    cookie,
		accountID: uuid.MustParse(login.AccountID),
		deviceID:  uuid.MustParse(login.DeviceID),
		sessionID: login.SessionID,
	}
}

func (c *loggedInClient) do(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, c.env.server.URL+path, bytes.NewReader(body))
	} else {
		req, err = http.NewRequest(method, c.env.server.URL+path, nil)
	}
	require.NoError(t, err)
	req.AddCookie(c.cookie)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Command whatsnote is a CLI client: it keeps notes and messages in a local
// sqlite store, queues edits while offline, and syncs them to the server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prudhvinik1/whatsnote/internal/client/reconcile"
	"github.com/prudhvinik1/whatsnote/internal/client/store"
	"github.com/prudhvinik1/whatsnote/internal/client/syncer"
	"github.com/prudhvinik1/whatsnote/internal/models"
)

// ---- config/session store ----

type sessionFile struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "whatsnote")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "whatsnote")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }
func dbPath() string      { return filepath.Join(cfgDir(), "whatsnote.db") }

func saveSession(sf sessionFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(sessionPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(sf)
}

func loadSession() (sessionFile, error) {
	var sf sessionFile
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return sf, err
	}
	if err := json.Unmarshal(b, &sf); err != nil {
		return sf, err
	}
	if sf.Token == "" || time.Now().After(sf.ExpiresAt) {
		return sf, errors.New("no valid session (login required)")
	}
	return sf, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: whatsnote [-server URL] <command> [args]

commands:
  register -email E -password P
  login    -email E -password P [-device-name NAME]
  note     get -id ID | edit -id ID -text TEXT | list
  msg      post -text TEXT [-tag-id N -tag-name S -tag-color C]
           edit -id ID [-text TEXT]
           check -id ID | uncheck -id ID | delete -id ID | list [-count N]
  sync     flush the pending queue and pull missed changes
  listen   follow the real-time push stream`)
	os.Exit(2)
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "server base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "register":
		err = cmdRegister(ctx, *serverURL, args[1:])
	case "login":
		err = cmdLogin(ctx, *serverURL, args[1:])
	case "note":
		err = cmdNote(ctx, *serverURL, args[1:], logger)
	case "msg":
		err = cmdMsg(ctx, *serverURL, args[1:], logger)
	case "sync":
		err = cmdSync(ctx, *serverURL, logger)
	case "listen":
		err = cmdListen(ctx, *serverURL, logger)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// ---- auth commands ----

func cmdRegister(ctx context.Context, serverURL string, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)

	body, _ := json.Marshal(map[string]string{"email": *email, "password": *password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("register failed with status %d", resp.StatusCode)
	}
	fmt.Println("registered")
	return nil
}

func cmdLogin(ctx context.Context, serverURL string, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	deviceName := fs.String("device-name", hostname(), "device name")
	_ = fs.Parse(args)

	payload := map[string]string{
		"email":      *email,
		"password":   *password,
		"deviceName": *deviceName,
		"deviceType": "cli",
	}
	// Reuse the device registered on a prior login from this machine
	if prev, err := loadSession(); err == nil && prev.DeviceID != "" {
		payload["deviceId"] = prev.DeviceID
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var loginResp struct {
		AccountID string `json:"accountId"`
		DeviceID  string `json:"deviceId"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return err
	}

	var token string
	var expires time.Time
	for _, c := range resp.Cookies() {
		if c.Name == "whatsnote_session" {
			token = c.Value
			expires = c.Expires
		}
	}
	if token == "" {
		return errors.New("server did not set a session cookie")
	}

	if err := saveSession(sessionFile{
		Token:     token,
		AccountID: loginResp.AccountID,
		DeviceID:  loginResp.DeviceID,
		SessionID: loginResp.SessionID,
		ExpiresAt: expires,
	}); err != nil {
		return err
	}
	fmt.Println("logged in")
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "cli"
	}
	return h
}

// ---- local engine ----

func openEngine(serverURL string, logger *zap.Logger) (*store.Store, *syncer.Syncer, error) {
	sf, err := loadSession()
	if err != nil {
		return nil, nil, err
	}

	_ = os.MkdirAll(cfgDir(), 0o700)
	st, err := store.Open(dbPath())
	if err != nil {
		return nil, nil, err
	}

	rec := reconcile.New(st, logger)
	sy := syncer.New(serverURL, sf.Token, st, rec, logger)
	return st, sy, nil
}

// submitLocal queues the event durably, applies it optimistically, then
// makes a best-effort sync; offline failures leave it queued.
func submitLocal(ctx context.Context, sy *syncer.Syncer, event models.Event, logger *zap.Logger) error {
	if err := sy.Submit(event); err != nil {
		return err
	}
	if err := sy.Sync(ctx); err != nil {
		logger.Warn("sync deferred; event stays queued", zap.Error(err))
	}
	return nil
}

// ---- note commands ----

func cmdNote(ctx context.Context, serverURL string, args []string, logger *zap.Logger) error {
	if len(args) == 0 {
		usage()
	}

	st, sy, err := openEngine(serverURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "get":
		fs := flag.NewFlagSet("note get", flag.ExitOnError)
		id := fs.String("id", "", "note id")
		_ = fs.Parse(args[1:])

		note, err := st.GetNote(*id)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("(empty)")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(note.Text)
		return nil

	case "edit":
		fs := flag.NewFlagSet("note edit", flag.ExitOnError)
		id := fs.String("id", "", "note id")
		text := fs.String("text", "", "note text")
		_ = fs.Parse(args[1:])

		data, _ := json.Marshal(models.NotePayload{Text: *text})
		event := models.Event{
			ID:        uuid.NewString(),
			ItemID:    *id,
			EmittedAt: time.Now().UnixMilli(),
			Type:      models.EventEditNote,
			Data:      data,
		}
		return submitLocal(ctx, sy, event, logger)

	case "list":
		notes, err := st.ListNotes()
		if err != nil {
			return err
		}
		for _, note := range notes {
			fmt.Printf("%s\t%s\n", note.ID, firstLine(note.Text))
		}
		return nil

	default:
		usage()
		return nil
	}
}

// ---- message commands ----

func cmdMsg(ctx context.Context, serverURL string, args []string, logger *zap.Logger) error {
	if len(args) == 0 {
		usage()
	}

	st, sy, err := openEngine(serverURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "post":
		fs := flag.NewFlagSet("msg post", flag.ExitOnError)
		text := fs.String("text", "", "message text")
		tagID := fs.Int("tag-id", 0, "tag id")
		tagName := fs.String("tag-name", "", "tag name")
		tagColor := fs.String("tag-color", "", "tag color")
		_ = fs.Parse(args[1:])

		payload := models.MessagePayload{Text: *text}
		if *tagID != 0 {
			payload.Tag = &models.Tag{ID: *tagID, Name: *tagName, Color: *tagColor}
		}
		data, _ := json.Marshal(payload)
		event := models.Event{
			ID:        uuid.NewString(),
			ItemID:    uuid.NewString(),
			EmittedAt: time.Now().UnixMilli(),
			Type:      models.EventPostMsg,
			Data:      data,
		}
		return submitLocal(ctx, sy, event, logger)

	case "edit":
		fs := flag.NewFlagSet("msg edit", flag.ExitOnError)
		id := fs.String("id", "", "message id")
		text := fs.String("text", "", "new text")
		_ = fs.Parse(args[1:])

		data, _ := json.Marshal(models.MessageEdit{Text: text})
		return submitLocal(ctx, sy, models.Event{
			ID:        uuid.NewString(),
			ItemID:    *id,
			EmittedAt: time.Now().UnixMilli(),
			Type:      models.EventEditMsg,
			Data:      data,
		}, logger)

	case "check", "uncheck", "delete":
		fs := flag.NewFlagSet("msg "+args[0], flag.ExitOnError)
		id := fs.String("id", "", "message id")
		_ = fs.Parse(args[1:])

		types := map[string]models.EventType{
			"check":   models.EventCheckMsg,
			"uncheck": models.EventUncheckMsg,
			"delete":  models.EventDeleteMsg,
		}
		return submitLocal(ctx, sy, models.Event{
			ID:        uuid.NewString(),
			ItemID:    *id,
			EmittedAt: time.Now().UnixMilli(),
			Type:      types[args[0]],
		}, logger)

	case "list":
		fs := flag.NewFlagSet("msg list", flag.ExitOnError)
		count := fs.Int("count", 20, "number of messages")
		_ = fs.Parse(args[1:])

		messages, err := st.ListMessages(*count)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			check := " "
			if msg.Checked {
				check = "x"
			}
			tag := ""
			if msg.Tag != nil {
				tag = " #" + msg.Tag.Name
			}
			fmt.Printf("[%s] %s  %s%s\n", check, msg.ID, msg.Text, tag)
		}
		return nil

	default:
		usage()
		return nil
	}
}

// ---- sync commands ----

func cmdSync(ctx context.Context, serverURL string, logger *zap.Logger) error {
	st, sy, err := openEngine(serverURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := sy.Sync(ctx); err != nil {
		return err
	}
	fmt.Println("synced")
	return nil
}

func cmdListen(ctx context.Context, serverURL string, logger *zap.Logger) error {
	st, sy, err := openEngine(serverURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Catch up first; the stream only carries events committed after connect.
	if err := sy.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			err := sy.Listen(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				logger.Warn("push stream lost, reconnecting", zap.Error(err))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}

			// Pull whatever the dropped stream missed.
			if err := sy.Sync(ctx); err != nil {
				logger.Warn("catch-up sync failed", zap.Error(err))
			}
		}
	})

	// Periodic pull backstops the stream against silently dropped pushes.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := sy.Sync(ctx); err != nil {
					logger.Warn("periodic sync failed", zap.Error(err))
				}
			}
		}
	})

	return g.Wait()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// Package telegram stores chunks as documents in a Telegram chat using
// the Bot API.
//
// Each chunk is sent with sendDocument. The returned file_id and
// message_id form the chunk handle; downloads go through getFile and
// the file endpoint, and deletes through deleteMessage.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"image-vault/internal/blob"
)

const (
	DefaultAPIURL = "https://api.telegram.org"

	// MaxDownloadBytes is the Bot API limit on getFile downloads.
	MaxDownloadBytes = 20 << 20

	defaultTimeout = 120 * time.Second
)

type Config struct {
	Token     string
	ChatID    int64
	LogChatID int64
	APIURL    string

	HTTPClient *http.Client
}

// Client implements blob.Transport on top of the Bot API.
type Client struct {
	token     string
	chatID    int64
	logChatID int64
	apiURL    string
	http      *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("TELEGRAM_CHAT_ID is required")
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		token:     cfg.Token,
		chatID:    cfg.ChatID,
		logChatID: cfg.LogChatID,
		apiURL:    apiURL,
		http:      httpClient,
	}, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	Document  *struct {
		FileID   string `json:"file_id"`
		FileSize int64  `json:"file_size"`
	} `json:"document"`
}

type file struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

func (c *Client) UploadChunk(ctx context.Context, data []byte) (blob.Handle, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.FormatInt(c.chatID, 10)); err != nil {
		return blob.Handle{}, blob.Permanent("upload", err)
	}
	part, err := w.CreateFormFile("document", uuid.NewString()+".bin")
	if err != nil {
		return blob.Handle{}, blob.Permanent("upload", err)
	}
	if _, err := part.Write(data); err != nil {
		return blob.Handle{}, blob.Permanent("upload", err)
	}
	if err := w.Close(); err != nil {
		return blob.Handle{}, blob.Permanent("upload", err)
	}

	var msg message
	if err := c.call(ctx, "upload", "sendDocument", w.FormDataContentType(), &body, &msg); err != nil {
		return blob.Handle{}, err
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return blob.Handle{}, blob.Permanent("upload", errors.New("response has no document"))
	}
	return blob.Handle{ID: msg.Document.FileID, Msg: msg.MessageID}, nil
}

func (c *Client) DownloadChunk(ctx context.Context, h blob.Handle) ([]byte, error) {
	form := url.Values{"file_id": {h.ID}}
	var f file
	if err := c.callForm(ctx, "download", "getFile", form, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, blob.NotFound("download", errors.New("file has no path"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/file/bot"+c.token+"/"+f.FilePath, nil)
	if err != nil {
		return nil, blob.Permanent("download", c.redact(err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.networkError(ctx, "download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("download", resp.StatusCode, "", 0)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, c.networkError(ctx, "download", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, blob.Permanent("download", fmt.Errorf("file exceeds %d bytes", MaxDownloadBytes))
	}
	return data, nil
}

func (c *Client) DeleteChunk(ctx context.Context, h blob.Handle) error {
	if h.Msg == 0 {
		return blob.Permanent("delete", errors.New("handle has no message id"))
	}
	form := url.Values{
		"chat_id":    {strconv.FormatInt(c.chatID, 10)},
		"message_id": {strconv.FormatInt(h.Msg, 10)},
	}
	var ok bool
	return c.callForm(ctx, "delete", "deleteMessage", form, &ok)
}

// SendLog posts text to the log chat. It is a no-op when no log chat is
// configured.
func (c *Client) SendLog(ctx context.Context, text string) error {
	if c.logChatID == 0 {
		return nil
	}
	form := url.Values{
		"chat_id": {strconv.FormatInt(c.logChatID, 10)},
		"text":    {text},
	}
	var msg message
	return c.callForm(ctx, "log", "sendMessage", form, &msg)
}

// Ping checks that the bot token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	var me struct {
		ID int64 `json:"id"`
	}
	return c.call(ctx, "ping", "getMe", "", nil, &me)
}

func (c *Client) callForm(ctx context.Context, op, method string, form url.Values, out any) error {
	return c.call(ctx, op, method, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), out)
}

func (c *Client) call(ctx context.Context, op, method, contentType string, body io.Reader, out any) error {
	httpMethod := http.MethodPost
	if body == nil {
		httpMethod = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, c.apiURL+"/bot"+c.token+"/"+method, body)
	if err != nil {
		return blob.Permanent(op, c.redact(err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.networkError(ctx, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.networkError(ctx, op, err)
	}

	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		if resp.StatusCode >= 500 {
			return classifyStatus(op, resp.StatusCode, "", 0)
		}
		return blob.Permanent(op, fmt.Errorf("%s: decode response (http %d): %w", method, resp.StatusCode, err))
	}
	if !r.OK || resp.StatusCode != http.StatusOK {
		code := r.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		retryAfter := 0
		if r.Parameters != nil {
			retryAfter = r.Parameters.RetryAfter
		}
		return classifyStatus(op, code, r.Description, retryAfter)
	}

	if out != nil {
		if err := json.Unmarshal(r.Result, out); err != nil {
			return blob.Permanent(op, fmt.Errorf("%s: decode result: %w", method, err))
		}
	}
	return nil
}

func classifyStatus(op string, status int, description string, retryAfter int) error {
	err := fmt.Errorf("http %d", status)
	if description != "" {
		err = fmt.Errorf("http %d: %s", status, description)
	}

	desc := strings.ToLower(description)
	switch {
	case status == http.StatusTooManyRequests:
		return blob.Transient(op, err, time.Duration(retryAfter)*time.Second)
	case status >= 500:
		return blob.Transient(op, err, 0)
	case status == http.StatusNotFound,
		strings.Contains(desc, "file not found"),
		strings.Contains(desc, "wrong file_id"),
		strings.Contains(desc, "invalid file_id"),
		strings.Contains(desc, "message to delete not found"):
		return blob.NotFound(op, err)
	default:
		return blob.Permanent(op, err)
	}
}

func (c *Client) networkError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return blob.Transient(op, c.redact(err), 0)
}

// redact strips the bot token from errors that embed request URLs.
func (c *Client) redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, c.token, "<redacted>")
	}
	return err
}

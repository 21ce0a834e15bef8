package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrEthical07/minidrive/session"
	"github.com/MrEthical07/minidrive/transport"
)

// Service exposes the drive operations. It is safe for concurrent use.
type Service struct {
	tc    *transport.Client
	token func() string
}

type Option func(*Service)

// WithToken supplies the live session token for each call. When it returns
// "" the transport falls back to the persisted token.
func WithToken(fn func() string) Option {
	return func(s *Service) { s.token = fn }
}

// New returns a Service over tc, or [ErrNilTransport] when tc is nil. Every
// call goes through tc.Do, so a 401 from any operation tears the session
// down before the error reaches the caller.
func New(tc *transport.Client, opts ...Option) (*Service, error) {
	if tc == nil {
		return nil, ErrNilTransport
	}
	s := &Service{tc: tc}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// call sends req and maps failures. When structured is set the API's JSON
// message replaces fallback.
func (s *Service) call(ctx context.Context, op string, req transport.Request, fallback string, structured bool) (*http.Response, error) {
	if req.Token == "" && s.token != nil {
		req.Token = s.token()
	}
	resp, err := s.tc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !transport.OK(resp) {
		return nil, failure(op, resp, fallback, structured)
	}
	return resp, nil
}

func failure(op string, resp *http.Response, fallback string, structured bool) error {
	msg := fallback
	if structured {
		msg = transport.ErrorMessage(resp, fallback)
	} else {
		transport.Discard(resp)
	}
	return &APIError{Op: op, Status: resp.StatusCode, Message: msg}
}

func (s *Service) callJSON(ctx context.Context, op string, req transport.Request, fallback string, structured bool, out any) error {
	resp, err := s.call(ctx, op, req, fallback, structured)
	if err != nil {
		return err
	}
	if out == nil {
		transport.Discard(resp)
		return nil
	}
	if err := transport.DecodeJSON(resp, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func segment(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyID
	}
	return url.PathEscape(id), nil
}

// FindUserByEmail resolves an email address to a user id.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	err := s.callJSON(ctx, "find-user", transport.Request{
		Method: http.MethodPost,
		Path:   "/api/users/find",
		JSON:   map[string]string{"email": email},
	}, msgFindUser, true, &out)
	return out.UserID, err
}

// Upload streams r as the multipart field "file".
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (FileItem, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     "file",
			"filename": filepath.Base(name),
		}))
		ct := mime.TypeByExtension(filepath.Ext(name))
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)

		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var item FileItem
	err := s.callJSON(ctx, "upload", transport.Request{
		Method:      http.MethodPost,
		Path:        "/api/files/upload",
		Body:        pr,
		ContentType: contentType,
	}, msgUpload, true, &item)
	// Unblocks the writer goroutine if the request ended early.
	pr.CloseWithError(io.ErrClosedPipe)
	return item, err
}

// UploadFile uploads the file at path under its base name.
func (s *Service) UploadFile(ctx context.Context, path string) (FileItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileItem{}, err
	}
	defer f.Close()
	return s.Upload(ctx, filepath.Base(path), f)
}

// ListFiles returns the caller's owned files and files shared with them.
func (s *Service) ListFiles(ctx context.Context) (FileLists, error) {
	var out FileLists
	err := s.callJSON(ctx, "list-files", transport.Request{Path: "/api/files/my-files"}, msgListFiles, false, &out)
	return out, err
}

// ListAllFiles returns every file. Admin only.
func (s *Service) ListAllFiles(ctx context.Context) ([]FileItem, error) {
	var out []FileItem
	err := s.callJSON(ctx, "list-all-files", transport.Request{Path: "/api/files/all"}, msgListAllFiles, false, &out)
	return out, err
}

// Delete removes a file. Owner or admin only.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	id, err := segment(fileID)
	if err != nil {
		return err
	}
	return s.callJSON(ctx, "delete", transport.Request{
		Method: http.MethodDelete,
		Path:   "/api/files/" + id,
	}, msgDelete, false, nil)
}

// UpdateMetadata patches a file's name, content type or owner.
func (s *Service) UpdateMetadata(ctx context.Context, fileID string, upd MetadataUpdate) (FileItem, error) {
	id, err := segment(fileID)
	if err != nil {
		return FileItem{}, err
	}
	var out struct {
		File FileItem `json:"file"`
	}
	err = s.callJSON(ctx, "update-metadata", transport.Request{
		Method: http.MethodPatch,
		Path:   "/api/files/" + id,
		JSON:   upd,
	}, msgUpdateMetadata, true, &out)
	return out.File, err
}

// Share grants userID the given permission on a file.
func (s *Service) Share(ctx context.Context, fileID, userID string, perm Permission) error {
	if !perm.Valid() {
		return ErrInvalidPermission
	}
	id, err := segment(fileID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyID
	}
	return s.callJSON(ctx, "share", transport.Request{
		Method: http.MethodPost,
		Path:   "/api/files/" + id + "/share",
		JSON:   map[string]string{"userId": userID, "permission": string(perm)},
	}, msgShare, false, nil)
}

// ShareByEmail resolves email to a user and shares the file with them.
func (s *Service) ShareByEmail(ctx context.Context, fileID, email string, perm Permission) error {
	if !perm.Valid() {
		return ErrInvalidPermission
	}
	userID, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.Share(ctx, fileID, userID, perm)
}

// GenerateLink creates a public, token-addressed link to a file.
func (s *Service) GenerateLink(ctx context.Context, fileID string) (ShareLink, error) {
	id, err := segment(fileID)
	if err != nil {
		return ShareLink{}, err
	}
	var out ShareLink
	err = s.callJSON(ctx, "generate-link", transport.Request{
		Method: http.MethodPost,
		Path:   "/api/files/" + id + "/generate-link",
	}, msgGenerateLink, true, &out)
	return out, err
}

// PublicFile fetches a file's metadata by public link token. It sends a
// bare request: no credentials and no auth-failure handling.
func (s *Service) PublicFile(ctx context.Context, linkToken string) (FileItem, error) {
	tok, err := segment(linkToken)
	if err != nil {
		return FileItem{}, err
	}
	resp, err := s.tc.DoPublic(ctx, transport.Request{Path: "/api/files/public/" + tok})
	if err != nil {
		return FileItem{}, fmt.Errorf("public-file: %w", err)
	}
	if !transport.OK(resp) {
		return FileItem{}, failure("public-file", resp, msgPublicFile, true)
	}
	var item FileItem
	if err := transport.DecodeJSON(resp, &item); err != nil {
		return FileItem{}, fmt.Errorf("public-file: %w", err)
	}
	return item, nil
}

// RequestAccess asks the owner for access to a file found via public link.
func (s *Service) RequestAccess(ctx context.Context, fileID string) error {
	id, err := segment(fileID)
	if err != nil {
		return err
	}
	return s.callJSON(ctx, "request-access", transport.Request{
		Method: http.MethodPost,
		Path:   "/api/files/" + id + "/request-access",
	}, msgRequestAccess, false, nil)
}

// AccessRequests lists access requests. Admin only.
func (s *Service) AccessRequests(ctx context.Context) ([]AccessRequest, error) {
	var out []AccessRequest
	err := s.callJSON(ctx, "access-requests", transport.Request{Path: "/api/files/access-requests"}, msgAccessRequests, false, &out)
	return out, err
}

// ApproveAccess approves a pending request with the given permission. Admin only.
func (s *Service) ApproveAccess(ctx context.Context, requestID string, perm Permission) error {
	if !perm.Valid() {
		return ErrInvalidPermission
	}
	id, err := segment(requestID)
	if err != nil {
		return err
	}
	return s.callJSON(ctx, "approve-access", transport.Request{
		Method: http.MethodPost,
		Path:   "/api/files/access-requests/" + id + "/approve",
		JSON:   map[string]string{"permission": string(perm)},
	}, msgApproveAccess, false, nil)
}

// Download opens a file's content. The caller must close the returned body.
func (s *Service) Download(ctx context.Context, fileID string) (*Download, error) {
	id, err := segment(fileID)
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, "download", transport.Request{Path: "/api/files/download/" + id}, msgDownload, false)
	if err != nil {
		return nil, err
	}

	d := &Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	if d.Size < 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			d.Size = n
		}
	}
	return d, nil
}

// DownloadBytes reads a whole file into memory.
func (s *Service) DownloadBytes(ctx context.Context, fileID string) ([]byte, error) {
	d, err := s.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer d.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, d.Body); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return buf.Bytes(), nil
}

// Users lists all accounts. Admin only.
func (s *Service) Users(ctx context.Context) ([]Account, error) {
	var out []Account
	err := s.callJSON(ctx, "users", transport.Request{Path: "/api/users"}, msgUsers, false, &out)
	return out, err
}

// UserFiles lists one user's files. Admin only. The API may answer with a
// bare array or with {"files": [...]}; both are accepted.
func (s *Service) UserFiles(ctx context.Context, userID string) ([]FileItem, error) {
	id, err := segment(userID)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := s.callJSON(ctx, "user-files", transport.Request{Path: "/api/users/" + id + "/files"}, msgUserFiles, false, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var files []FileItem
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, fmt.Errorf("user-files: %w", err)
		}
		return files, nil
	}
	var wrapped struct {
		Files []FileItem `json:"files"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("user-files: %w", err)
	}
	if wrapped.Files == nil {
		return []FileItem{}, nil
	}
	return wrapped.Files, nil
}

// PromoteUser grants the admin role and returns the updated user.
func (s *Service) PromoteUser(ctx context.Context, userID string) (session.User, error) {
	id, err := segment(userID)
	if err != nil {
		return session.User{}, err
	}
	var out struct {
		User session.User `json:"user"`
	}
	err = s.callJSON(ctx, "promote", transport.Request{
		Method: http.MethodPost,
		Path:   "/api/users/" + id + "/promote",
	}, msgPromote, true, &out)
	return out.User, err
}

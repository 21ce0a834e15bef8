package fakeapi

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type wireUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type wireAccount struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type wireOwner struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

type wireFile struct {
	ID             string     `json:"_id"`
	Filename       string     `json:"filename"`
	OriginalName   string     `json:"originalName"`
	Size           int64      `json:"size"`
	UploadDate     string     `json:"uploadDate"`
	ContentType    string     `json:"contentType"`
	UserID         string     `json:"userId"`
	Owner          *wireOwner `json:"owner,omitempty"`
	UserPermission *string    `json:"userPermission"`
	Shared         bool       `json:"shared,omitempty"`
}

type wireFieldError struct {
	Msg  string `json:"msg"`
	Path string `json:"path"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func toWireUser(u *user) wireUser {
	return wireUser{ID: u.ID, Email: u.Email, Role: u.Role}
}

// fileLocked renders f; s.mu must be held.
func (s *Server) fileLocked(f *file, viewerID string) wireFile {
	out := wireFile{
		ID:           f.ID,
		Filename:     f.Filename,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		UploadDate:   f.UploadDate.Format("2006-01-02T15:04:05.000Z"),
		ContentType:  f.ContentType,
		UserID:       f.OwnerID,
	}
	if owner, ok := s.users[f.OwnerID]; ok {
		out.Owner = &wireOwner{ID: owner.ID, Email: owner.Email}
	}
	if perm, ok := f.shares[viewerID]; ok && viewerID != f.OwnerID {
		p := perm
		out.UserPermission = &p
		out.Shared = true
	}
	return out
}

func (s *Server) sortedFilesLocked(keep func(*file) bool, viewerID string) []wireFile {
	out := make([]wireFile, 0)
	for _, f := range s.files {
		if keep(f) {
			out = append(out, s.fileLocked(f, viewerID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalName < out[j].OriginalName })
	return out
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	id, ok := s.byEmail[strings.ToLower(c.Email)]
	var u *user
	if ok {
		cp := *s.users[id]
		u = &cp
	}
	s.mu.Unlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(c.Password)) != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	s.respondWithToken(w, http.StatusOK, u)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs []wireFieldError
	if !strings.Contains(c.Email, "@") {
		errs = append(errs, wireFieldError{Msg: "Please provide a valid email", Path: "email"})
	} else {
		s.mu.Lock()
		_, taken := s.byEmail[strings.ToLower(c.Email)]
		s.mu.Unlock()
		if taken {
			errs = append(errs, wireFieldError{Msg: "Email taken", Path: "email"})
		}
	}
	if len(c.Password) < minPasswordLength {
		errs = append(errs, wireFieldError{Msg: "Password too short", Path: "password"})
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	id, err := s.AddUser(c.Email, c.Password, "user")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []wireFieldError{{Msg: "Email taken", Path: "email"}}})
		return
	}
	s.mu.Lock()
	cp := *s.users[id]
	s.mu.Unlock()
	s.respondWithToken(w, http.StatusCreated, &cp)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, u *user) {
	token, err := s.IssueToken(u.ID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Token generation failed")
		return
	}
	writeJSON(w, status, map[string]any{"token": token, "user": toWireUser(u)})
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, u *user) {
	writeJSON(w, http.StatusOK, map[string]any{"user": toWireUser(u)})
}

func (s *Server) myFiles(w http.ResponseWriter, _ *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.sortedFilesLocked(func(f *file) bool { return f.OwnerID == u.ID }, u.ID)
	shared := s.sortedFilesLocked(func(f *file) bool {
		_, ok := f.shares[u.ID]
		return ok && f.OwnerID != u.ID
	}, u.ID)
	writeJSON(w, http.StatusOK, map[string]any{"owned": owned, "shared": shared})
}

func (s *Server) allFiles(w http.ResponseWriter, _ *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sortedFilesLocked(func(*file) bool { return true }, u.ID))
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, u *user) {
	part, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Upload interrupted")
		return
	}

	id := s.AddFile(u.ID, header.Filename, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.files[id]
	if ct := header.Header.Get("Content-Type"); ct != "" {
		f.ContentType = ct
	}
	writeJSON(w, http.StatusCreated, s.fileLocked(f, u.ID))
}

// canReadLocked reports owner, admin or any share.
func canReadLocked(f *file, u *user) bool {
	if f.OwnerID == u.ID || u.Role == "admin" {
		return true
	}
	_, ok := f.shares[u.ID]
	return ok
}

func canManageLocked(f *file, u *user) bool {
	return f.OwnerID == u.ID || u.Role == "admin"
}

func (s *Server) download(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	f, ok := s.files[r.PathValue("id")]
	if !ok {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if !canReadLocked(f, u) {
		s.mu.Unlock()
		writeMessage(w, http.StatusForbidden, "Access denied")
		return
	}
	data := append([]byte(nil), f.Data...)
	name, ct := f.OriginalName, f.ContentType
	s.mu.Unlock()

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if !canManageLocked(f, u) {
		writeMessage(w, http.StatusForbidden, "Access denied")
		return
	}
	delete(s.files, f.ID)
	if f.LinkToken != "" {
		delete(s.links, f.LinkToken)
	}
	writeMessage(w, http.StatusOK, "File deleted")
}

func (s *Server) updateFile(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		OriginalName *string `json:"originalName"`
		ContentType  *string `json:"contentType"`
		OwnerID      *string `json:"ownerId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if !canManageLocked(f, u) {
		writeMessage(w, http.StatusForbidden, "Access denied")
		return
	}
	if body.OwnerID != nil {
		if u.Role != "admin" {
			writeMessage(w, http.StatusForbidden, "Only admins can change ownership")
			return
		}
		if _, ok := s.users[*body.OwnerID]; !ok {
			writeMessage(w, http.StatusBadRequest, "New owner not found")
			return
		}
		f.OwnerID = *body.OwnerID
	}
	if body.OriginalName != nil {
		if strings.TrimSpace(*body.OriginalName) == "" {
			writeMessage(w, http.StatusBadRequest, "originalName must not be empty")
			return
		}
		f.OriginalName = *body.OriginalName
	}
	if body.ContentType != nil {
		f.ContentType = *body.ContentType
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": s.fileLocked(f, u.ID)})
}

func (s *Server) share(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		UserID     string `json:"userId"`
		Permission string `json:"permission"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Permission != "view" && body.Permission != "edit" {
		writeMessage(w, http.StatusBadRequest, "Invalid permission")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if f.OwnerID != u.ID {
		writeMessage(w, http.StatusForbidden, "Only the owner can share")
		return
	}
	if _, ok := s.users[body.UserID]; !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	f.shares[body.UserID] = body.Permission
	writeMessage(w, http.StatusOK, "File shared")
}

func (s *Server) generateLink(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if !canManageLocked(f, u) {
		writeMessage(w, http.StatusForbidden, "Access denied")
		return
	}
	if f.LinkToken == "" {
		f.LinkToken = strings.ReplaceAll(uuid.NewString(), "-", "")
		s.links[f.LinkToken] = f.ID
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"link":  s.baseURL + "/shared/" + f.LinkToken,
		"token": f.LinkToken,
	})
}

func (s *Server) publicFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.links[r.PathValue("token")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Link not found")
		return
	}
	writeJSON(w, http.StatusOK, s.fileLocked(s.files[id], ""))
}

func (s *Server) requestAccess(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	for _, req := range s.requests {
		if req.FileID == f.ID && req.UserID == u.ID && req.Status == "pending" {
			writeMessage(w, http.StatusConflict, "Request already pending")
			return
		}
	}
	req := &accessRequest{ID: uuid.NewString(), FileID: f.ID, UserID: u.ID, Status: "pending"}
	s.requests[req.ID] = req
	writeJSON(w, http.StatusCreated, map[string]string{"_id": req.ID, "status": req.Status})
}

func (s *Server) listRequests(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, map[string]string{
			"_id":    req.ID,
			"fileId": req.FileID,
			"userId": req.UserID,
			"status": req.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["_id"] < out[j]["_id"] })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request, _ *user) {
	var body struct {
		Permission string `json:"permission"`
	}
	if err := decodeBody(r, &body); err != nil || (body.Permission != "view" && body.Permission != "edit") {
		writeMessage(w, http.StatusBadRequest, "Invalid permission")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Request not found")
		return
	}
	if req.Status != "pending" {
		writeMessage(w, http.StatusConflict, "Request already resolved")
		return
	}
	f, ok := s.files[req.FileID]
	if !ok {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	f.shares[req.UserID] = body.Permission
	req.Status = "approved"
	writeMessage(w, http.StatusOK, "Access approved")
}

func (s *Server) findUser(w http.ResponseWriter, r *http.Request, _ *user) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	id, ok := s.byEmail[strings.ToLower(body.Email)]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "No user with that email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id})
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wireAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, wireAccount{ID: u.ID, Email: u.Email, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) userFiles(w http.ResponseWriter, r *http.Request, admin *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := s.users[id]; !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	files := s.sortedFilesLocked(func(f *file) bool { return f.OwnerID == id }, admin.ID)
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) promote(w http.ResponseWriter, r *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[r.PathValue("id")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	u.Role = "admin"
	writeJSON(w, http.StatusOK, map[string]any{"user": toWireUser(u)})
}

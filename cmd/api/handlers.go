package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/cloudinary"
	"classtrack/internal/config"
	"classtrack/internal/geo"
	"classtrack/internal/metrics"
	"classtrack/internal/session"
	"classtrack/internal/users"
	"classtrack/internal/verification"
)

type api struct {
	cfg      config.App
	sessions *session.Service
	ledger   *attendance.Ledger
	users    *users.Repository
	gate     *verification.Orchestrator
	cdn      *cloudinary.Client
}

func (a *api) routes(r *gin.Engine) {
	r.POST("/v1/auth/login", a.login)

	v1 := r.Group("/v1", auth.UserAuth(a.cfg.JWTSigningKey, a.cfg.JWTIssuer))

	staff := auth.RequireRoles(users.RoleAdmin, users.RoleTeacher)

	v1.POST("/auth/register", auth.RequireRoles(users.RoleAdmin), a.register)

	v1.POST("/sessions", staff, a.createSession)
	v1.PUT("/sessions/:id", staff, a.updateSession)
	v1.GET("/sessions", a.listSessions)
	v1.GET("/sessions/:id", a.getSession)
	v1.DELETE("/sessions/:id", staff, a.deleteSession)
	v1.POST("/sessions/:id/qr-token", staff, a.joinToken)
	v1.POST("/sessions/:id/join", auth.RequireRoles(users.RoleStudent), a.joinSession)

	v1.POST("/gps/validate", a.validateGeofence)
	v1.POST("/verification/capture", a.uploadCapture)

	v1.POST("/attendance/mark", staff, a.markAttendance)
	v1.PUT("/attendance/:id/status", staff, a.amendAttendance)
	v1.GET("/attendance", staff, a.listAttendance)
	v1.GET("/attendance/student/:studentId", a.studentReport)
}

func (a *api) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := a.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) || errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Printf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	tokens, err := auth.Issue(u.ID, u.Name, u.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"user":          u,
	})
}

func (a *api) register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
		Class    string `json:"class"`
		Section  string `json:"section"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Role {
	case users.RoleAdmin, users.RoleTeacher, users.RoleStudent:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin, teacher or student"})
		return
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	u, err := a.users.Create(c.Request.Context(), users.User{
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		Class:        req.Class,
		Section:      req.Section,
		PasswordHash: hash,
	})
	if err != nil {
		log.Printf("user create failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, u)
}

type sessionRequest struct {
	TeacherID string            `json:"teacher_id"`
	Class     string            `json:"class" binding:"required"`
	Section   string            `json:"section"`
	Subject   string            `json:"subject" binding:"required"`
	Topic     string            `json:"topic"`
	Date      string            `json:"date" binding:"required"`
	StartTime string            `json:"start_time" binding:"required"`
	EndTime   string            `json:"end_time" binding:"required"`
	Status    string            `json:"status"`
	Geofence  *session.Geofence `json:"gps_location"`
	RadiusM   float64           `json:"radius_m"`
}

func (req sessionRequest) toSession(teacherID string) (session.Session, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return session.Session{}, session.ValidationError{Msg: "date must be YYYY-MM-DD"}
	}
	return session.Session{
		TeacherID: teacherID,
		Class:     req.Class,
		Section:   req.Section,
		Subject:   req.Subject,
		Topic:     req.Topic,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    req.Status,
		Geofence:  req.Geofence,
		RadiusM:   req.RadiusM,
	}, nil
}

func writeSessionError(c *gin.Context, err error) {
	switch {
	case session.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrConflict):
		metrics.SessionConflicts.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrCompleted), errors.Is(err, session.ErrHasAttendance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("session op failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (a *api) createSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Teachers own what they create; an admin schedules on a teacher's
	// behalf and must say whose session it is.
	claims, _ := auth.FromContext(c)
	owner := claims.Subject
	if claims.Role == users.RoleAdmin {
		if req.TeacherID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "teacher_id is required when creating as admin"})
			return
		}
		owner = req.TeacherID
	}

	in, err := req.toSession(owner)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	s, err := a.sessions.Create(c.Request.Context(), in)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (a *api) updateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := a.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}

	claims, _ := auth.FromContext(c)
	if claims.Role != users.RoleAdmin && claims.Subject != current.TeacherID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
		return
	}

	// The candidate keeps the stored owner so the conflict check runs
	// against the owner's other sessions, whoever the caller is.
	in, err := req.toSession(current.TeacherID)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	in.ID = current.ID

	s, err := a.sessions.Update(c.Request.Context(), in)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) listSessions(c *gin.Context) {
	f := session.Filter{
		TeacherID: c.Query("teacher_id"),
		Class:     c.Query("class"),
		Section:   c.Query("section"),
		Status:    c.Query("status"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		f.To = t
	}

	// Students see only their own class timetable.
	claims, _ := auth.FromContext(c)
	if claims.Role == users.RoleStudent {
		u, err := a.users.Get(c.Request.Context(), claims.Subject)
		if err == nil {
			f.Class, f.Section = u.Class, u.Section
		}
	}

	list, err := a.sessions.List(c.Request.Context(), f)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	if c.Query("view") == "classified" {
		c.JSON(http.StatusOK, session.Partition(list, time.Now()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (a *api) getSession(c *gin.Context) {
	s, err := a.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s, "state": session.Classify(s, time.Now())})
}

func (a *api) deleteSession(c *gin.Context) {
	s, err := a.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}

	claims, _ := auth.FromContext(c)
	if claims.Role != users.RoleAdmin && claims.Subject != s.TeacherID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
		return
	}

	if err := a.sessions.Delete(c.Request.Context(), s.ID); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (a *api) joinToken(c *gin.Context) {
	s, err := a.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}

	claims, _ := auth.FromContext(c)
	if claims.Role != users.RoleAdmin && claims.Subject != s.TeacherID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
		return
	}

	token, expiresAt, err := session.IssueJoinToken(s, a.cfg.JWTSigningKey, time.Now())
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) || errors.Is(err, session.ErrSessionEnded) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt.Unix()})
}

func (a *api) joinSession(c *gin.Context) {
	var req struct {
		Token     string   `json:"token"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Proof     string   `json:"proof"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := a.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}

	// A scanned QR token must belong to this session.
	if req.Token != "" {
		jc, err := session.ParseJoinToken(req.Token, a.cfg.JWTSigningKey)
		if err != nil || jc.SessionID != s.ID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid join token"})
			return
		}
	}

	if session.Classify(s, time.Now()) != session.StateLive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session is not live"})
		return
	}

	claims, _ := auth.FromContext(c)
	res, err := a.gate.Join(c.Request.Context(), verification.JoinRequest{
		StudentID: claims.Subject,
		Session:   s,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Proof:     req.Proof,
	})
	if err != nil {
		if errors.Is(err, verification.ErrUpstream) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		log.Printf("join failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusOK
	if res.State == verification.StateFailed {
		status = http.StatusForbidden
	}
	c.JSON(status, res)
}

func (a *api) validateGeofence(c *gin.Context) {
	var req struct {
		TeacherLat *float64 `json:"teacher_lat" binding:"required"`
		TeacherLon *float64 `json:"teacher_lon" binding:"required"`
		StudentLat *float64 `json:"student_lat" binding:"required"`
		StudentLon *float64 `json:"student_lon" binding:"required"`
		Radius     *float64 `json:"radius" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "teacher_lat, teacher_lon, student_lat, student_lon and radius are required"})
		return
	}

	d := geo.Validate(*req.TeacherLat, *req.TeacherLon, *req.StudentLat, *req.StudentLon, *req.Radius)
	if !d.Allowed {
		metrics.GeofenceDenials.Inc()
	}
	c.JSON(http.StatusOK, d)
}

// uploadCapture stores a confirmation photo and returns its URL, which the
// client submits as the join proof.
func (a *api) uploadCapture(c *gin.Context) {
	if a.cdn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}

	contentType := c.ContentType()
	var result *cloudinary.UploadResult
	var err error

	switch {
	case strings.Contains(contentType, "multipart/form-data"):
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
		result, err = a.cdn.UploadBytes(c.Request.Context(), data, header.Filename)

	default:
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
			return
		}
		result, err = a.cdn.UploadBase64(c.Request.Context(), body.Data)
	}

	if err != nil {
		log.Printf("cloudinary upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       result.SecureURL,
		"public_id": result.PublicID,
		"bytes":     result.Bytes,
	})
}

func (a *api) markAttendance(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		SessionID string `json:"session_id"`
		Date      string `json:"date" binding:"required"`
		Status    string `json:"status"`
		Remarks   string `json:"remarks"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if req.Status == "" {
		req.Status = attendance.StatusPresent
	}

	claims, _ := auth.FromContext(c)
	rec := attendance.Record{
		StudentID: req.StudentID,
		Date:      date,
		Status:    req.Status,
		MarkedBy:  claims.Subject,
		Remarks:   req.Remarks,
	}
	if req.SessionID != "" {
		rec.SessionID = &req.SessionID
	}

	created, err := a.ledger.Mark(c.Request.Context(), rec)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created})
}

func (a *api) amendAttendance(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := a.ledger.AmendStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (a *api) listAttendance(c *gin.Context) {
	f := attendance.Filter{
		StudentID: c.Query("student_id"),
		SessionID: c.Query("session_id"),
		Status:    c.Query("status"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		f.To = t
	}

	records, err := a.ledger.List(c.Request.Context(), f)
	if err != nil {
		log.Printf("attendance list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (a *api) studentReport(c *gin.Context) {
	studentID := c.Param("studentId")

	claims, _ := auth.FromContext(c)
	if claims.Role == users.RoleStudent && claims.Subject != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot view another student's report"})
		return
	}

	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		to = t
	}

	report, err := a.ledger.StudentReport(c.Request.Context(), studentID, from, to)
	if err != nil {
		log.Printf("student report failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, report)
}

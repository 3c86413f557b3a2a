// Package fakeapi is an in-process credential issuing API for tests and demos.
// It signs HS256 tokens, keeps bcrypt-hashed users and counts every call.
package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ginModeOnce sync.Once

type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	Now      func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Secret:   []byte("fakeapi-secret"),
		TokenTTL: 15 * time.Minute,
		Now:      time.Now,
	}
}

type Counts struct {
	Logins    int
	Refreshes int
	Me        int
	Protected int
}

type user struct {
	id     string
	ident  string
	name   string
	role   string
	secret []byte
}

type Server struct {
	opts   Options
	engine *gin.Engine

	mu           sync.Mutex
	users        map[string]user
	seq          int64
	minSeq       int64
	refreshDelay time.Duration
	refreshFail  bool
	counts       Counts
}

func New(opts Options) *Server {
	def := DefaultOptions()
	if len(opts.Secret) == 0 {
		opts.Secret = def.Secret
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = def.TokenTTL
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	ginModeOnce.Do(func() { gin.SetMode(gin.TestMode) })
	s := &Server{
		opts:   opts,
		engine: gin.New(),
		users:  make(map[string]user),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	auth := s.engine.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.GET("/refresh-token", s.handleRefresh)
	auth.GET("/me", s.requireToken, s.handleMe)

	api := s.engine.Group("/api", s.requireToken)
	api.GET("/orders", s.handleOrders)
	api.POST("/orders", s.handleCreateOrder)

	s.engine.GET("/public/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
}

// AddUser registers identifier with a bcrypt hash of secret and returns its id.
func (s *Server) AddUser(identifier, secret, role, name string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	u := user{
		id:     uuid.NewString(),
		ident:  identifier,
		name:   name,
		role:   strings.ToUpper(role),
		secret: hash,
	}
	s.mu.Lock()
	s.users[identifier] = u
	s.mu.Unlock()
	return u.id, nil
}

// IssueToken signs a token for a registered user that expires in ttl.
func (s *Server) IssueToken(identifier string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	u, ok := s.users[identifier]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown user %q", identifier)
	}
	return s.sign(u, ttl)
}

// Invalidate makes every token issued so far unacceptable to protected
// endpoints. The refresh endpoint still honours them until they expire.
func (s *Server) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minSeq = s.seq + 1
}

func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

func (s *Server) SetRefreshFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = fail
}

func (s *Server) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

func (s *Server) sign(u user, ttl time.Duration) (string, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	now := s.opts.Now()
	claims := jwt.MapClaims{
		"sub":    u.ident,
		"userId": u.id,
		"role":   u.role,
		"roles":  []string{u.role},
		"seq":    seq,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

type parsedToken struct {
	user user
	seq  int64
}

func (s *Server) parse(c *gin.Context) (parsedToken, error) {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return parsedToken{}, errors.New("missing bearer")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.opts.Now))
	if err != nil {
		return parsedToken{}, err
	}

	sub, _ := claims.GetSubject()
	seq, _ := claims["seq"].(float64)

	s.mu.Lock()
	u, ok := s.users[sub]
	s.mu.Unlock()
	if !ok {
		return parsedToken{}, errors.New("unknown subject")
	}
	return parsedToken{user: u, seq: int64(seq)}, nil
}

func (s *Server) requireToken(c *gin.Context) {
	tok, err := s.parse(c)
	if err == nil {
		s.mu.Lock()
		if tok.seq < s.minSeq {
			err = errors.New("token revoked")
		}
		s.mu.Unlock()
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Set("user", tok.user)
	c.Next()
}

type loginBody struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
	Username   string `json:"username"`
	Secret     string `json:"secret"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

func (b loginBody) ident() string {
	for _, v := range []string{b.Identifier, b.Phone, b.Username} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (b loginBody) pass() string {
	if b.Secret != "" {
		return b.Secret
	}
	return b.Password
}

func (s *Server) handleLogin(c *gin.Context) {
	s.mu.Lock()
	s.counts.Logins++
	s.mu.Unlock()

	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[body.ident()]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.secret, []byte(body.pass())) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if body.Role != "" && !strings.EqualFold(body.Role, u.role) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tok, err := s.sign(u, s.opts.TokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}

// handleRefresh answers with the bare token string.
func (s *Server) handleRefresh(c *gin.Context) {
	s.mu.Lock()
	s.counts.Refreshes++
	delay, fail := s.refreshDelay, s.refreshFail
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}
	}

	tok, err := s.parse(c)
	if err != nil || fail {
		c.String(http.StatusUnauthorized, "refresh rejected")
		return
	}
	fresh, err := s.sign(tok.user, s.opts.TokenTTL)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.String(http.StatusOK, fresh)
}

func (s *Server) handleMe(c *gin.Context) {
	s.mu.Lock()
	s.counts.Me++
	s.mu.Unlock()

	u := c.MustGet("user").(user)
	c.JSON(http.StatusOK, gin.H{
		"userId": u.id,
		"name":   u.name,
		"phone":  u.ident,
		"role":   u.role,
	})
}

func (s *Server) handleOrders(c *gin.Context) {
	s.mu.Lock()
	s.counts.Protected++
	s.mu.Unlock()

	u := c.MustGet("user").(user)
	c.JSON(http.StatusOK, gin.H{"owner": u.id, "orders": []string{}})
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	s.mu.Lock()
	s.counts.Protected++
	s.mu.Unlock()

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	c.JSON(http.StatusCreated, body)
}

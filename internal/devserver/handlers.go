package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/ledgerAuth/internal/forms"
	"github.com/MrEthical07/ledgerAuth/jwt"
	"github.com/gin-gonic/gin"
)

// Response messages.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgUnverified         = "Please verify your email before logging in."
	MsgInvalidOTP         = "Invalid or expired OTP"
	MsgOTPSent            = "OTP sent to email"
	MsgEmailTaken         = "Email is already registered"
	MsgSignupOK           = "Registration successful. Please check your email to verify your account."
	MsgInvalidVerifyToken = "Invalid or expired verification token"
	MsgVerified           = "Email verified successfully. You can now log in."
	MsgResetRequested     = "If an account exists for that email, a reset code has been sent."
	MsgResetOK            = "Password has been reset successfully."
	MsgPasswordsDiffer    = "Passwords do not match"
	MsgLoggedOut          = "Logged out successfully"
	MsgInvalidToken       = "Invalid or expired token"
)

const claimsKey = "devserver.claims"

type credentialsBody struct {
	Email    string `json:"email" binding:"required,ledger_email"`
	Password string `json:"password" binding:"required"`
}

type codeBody struct {
	Email string `json:"email" binding:"required,ledger_email"`
	OTP   string `json:"otp" binding:"required"`
}

type emailBody struct {
	Email string `json:"email" binding:"required,ledger_email"`
}

type signupBody struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,ledger_email"`
	Password string `json:"password" binding:"required"`
}

type resetBody struct {
	Email           string `json:"email" binding:"required,ledger_email"`
	OTP             string `json:"otp" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

type authResponse struct {
	Token    string   `json:"token"`
	Roles    []string `json:"roles"`
	Verified bool     `json:"verified"`
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return false
	}
	return true
}

// codeShape rejects a code that is not exactly the configured number of
// digits. The length is server configuration, so it cannot be a binding tag.
func (s *Server) codeShape(c *gin.Context, code string) bool {
	if forms.ValidCode(code, s.config.CodeDigits) {
		return true
	}
	fail(c, http.StatusBadRequest, "OTP must be exactly "+strconv.Itoa(s.config.CodeDigits)+" digits")
	return false
}

func (s *Server) login(c *gin.Context) {
	var req credentialsBody
	if !bindJSON(c, &req) {
		return
	}
	acct, err := s.accounts.authenticate(req.Email, req.Password)
	switch {
	case errors.Is(err, errUnverified):
		fail(c, http.StatusForbidden, MsgUnverified)
		return
	case err != nil:
		fail(c, http.StatusUnauthorized, MsgInvalidCredentials)
		return
	}

	token, err := s.signer.Sign(acct.Email, jwt.StagePassword, acct.Roles)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token signing failed")
		return
	}
	if !s.mailCode(c, acct.Email, codeLogin) {
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, Roles: acct.Roles, Verified: true})
}

func (s *Server) verifyOTP(c *gin.Context) {
	var req codeBody
	if !bindJSON(c, &req) || !s.codeShape(c, req.OTP) {
		return
	}
	if err := s.accounts.consumeCode(req.Email, codeLogin, req.OTP); err != nil {
		fail(c, http.StatusUnauthorized, MsgInvalidOTP)
		return
	}
	acct, ok := s.accounts.lookup(req.Email)
	if !ok {
		fail(c, http.StatusUnauthorized, MsgInvalidOTP)
		return
	}

	token, err := s.signer.Sign(acct.Email, jwt.StageComplete, acct.Roles)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token signing failed")
		return
	}
	// The code exchange reports bare role names.
	bare := make([]string, 0, len(acct.Roles))
	for _, r := range acct.Roles {
		bare = append(bare, strings.TrimPrefix(r, "ROLE_"))
	}
	c.JSON(http.StatusOK, authResponse{Token: token, Roles: bare, Verified: true})
}

func (s *Server) sendOTP(c *gin.Context) {
	claims, ok := s.bearerClaims(c, jwt.StagePassword)
	if !ok {
		return
	}
	var req emailBody
	if !bindJSON(c, &req) {
		return
	}
	if claims.Subject != normalizeEmail(req.Email) {
		fail(c, http.StatusUnauthorized, MsgInvalidToken)
		return
	}
	if !s.mailCode(c, claims.Subject, codeLogin) {
		return
	}
	c.String(http.StatusOK, MsgOTPSent)
}

func (s *Server) signup(c *gin.Context) {
	var req signupBody
	if !bindJSON(c, &req) {
		return
	}
	if err := s.config.Policy.Check(req.Password); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}
	token, err := s.accounts.create(req.Name, req.Email, req.Password, nil, false)
	switch {
	case errors.Is(err, errAccountExists):
		fail(c, http.StatusConflict, MsgEmailTaken)
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "account creation failed")
		return
	}
	s.sendVerification(req.Email, token)
	c.String(http.StatusOK, MsgSignupOK)
}

func (s *Server) verifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" || s.accounts.verifyEmail(token) != nil {
		fail(c, http.StatusBadRequest, MsgInvalidVerifyToken)
		return
	}
	c.String(http.StatusOK, MsgVerified)
}

// forgotPassword answers the same way whether or not the account exists.
func (s *Server) forgotPassword(c *gin.Context) {
	var req emailBody
	if !bindJSON(c, &req) {
		return
	}
	if _, ok := s.accounts.lookup(req.Email); ok {
		if !s.mailCode(c, req.Email, codeReset) {
			return
		}
	}
	c.String(http.StatusOK, MsgResetRequested)
}

func (s *Server) resetWithOTP(c *gin.Context) {
	var req resetBody
	if !bindJSON(c, &req) || !s.codeShape(c, req.OTP) {
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		fail(c, http.StatusBadRequest, MsgPasswordsDiffer)
		return
	}
	if err := s.config.Policy.Check(req.NewPassword); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}
	if err := s.accounts.resetPassword(req.Email, req.OTP, req.NewPassword); err != nil {
		if errors.Is(err, errCodeRejected) {
			fail(c, http.StatusBadRequest, MsgInvalidOTP)
			return
		}
		fail(c, http.StatusInternalServerError, "password update failed")
		return
	}
	c.String(http.StatusOK, MsgResetOK)
}

func (s *Server) logout(c *gin.Context) {
	claims, ok := s.bearerClaims(c, jwt.StageComplete)
	if !ok {
		return
	}
	s.accounts.revoke(bearerToken(c), claims.ExpiresAt)
	c.String(http.StatusOK, MsgLoggedOut)
}

func (s *Server) me(c *gin.Context) {
	claims := c.MustGet(claimsKey).(jwt.Claims)
	acct, ok := s.accounts.lookup(claims.Subject)
	if !ok {
		fail(c, http.StatusUnauthorized, MsgInvalidToken)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": acct.Name, "email": acct.Email, "roles": acct.Roles})
}

// requireToken rejects requests without a valid, unrevoked token of stage.
func (s *Server) requireToken(stage string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := s.bearerClaims(c, stage)
		if !ok {
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func (s *Server) bearerClaims(c *gin.Context, stage string) (jwt.Claims, bool) {
	token := bearerToken(c)
	if token == "" || s.accounts.isRevoked(token) {
		fail(c, http.StatusUnauthorized, MsgInvalidToken)
		return jwt.Claims{}, false
	}
	claims, err := s.signer.Verify(token, stage)
	if err != nil {
		fail(c, http.StatusUnauthorized, MsgInvalidToken)
		return jwt.Claims{}, false
	}
	return claims, true
}

func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func (s *Server) mailCode(c *gin.Context, email string, kind codeKind) bool {
	ttl, mailKind := s.config.LoginCodeTTL, MailLoginCode
	if kind == codeReset {
		ttl, mailKind = s.config.ResetCodeTTL, MailResetCode
	}
	code, err := s.accounts.issueCode(email, kind, ttl)
	if err != nil {
		fail(c, http.StatusInternalServerError, "code generation failed")
		return false
	}
	s.outbox.send(Mail{To: normalizeEmail(email), Kind: mailKind, Code: code, SentAt: s.config.Now()})
	return true
}

package ledgerAuth

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/ledgerAuth/backend/backendtest"
)

func TestResetHappyPath(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()

	if _, err := flow.RequestCode(ctx, bobEmail); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if flow.Step() != ResetAwaitingCode || flow.Email() != bobEmail {
		t.Fatalf("unexpected state %v / %q", flow.Step(), flow.Email())
	}
	if err := flow.EnterCode(ctx, fake.ResetCode(bobEmail)); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if flow.Step() != ResetAwaitingNewPassword {
		t.Fatalf("unexpected step %v", flow.Step())
	}

	res, err := flow.Submit(ctx, "newpass123", "newpass123")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Next != "/login" || res.RedirectAfter != 3*time.Second || res.Message != backendtest.MsgResetOK {
		t.Fatalf("unexpected result %+v", res)
	}
	if flow.Step() != ResetComplete || flow.Email() != "" || flow.Code() != "" {
		t.Fatal("expected reset state to be cleared")
	}
	if a, _ := fake.Account(bobEmail); a.Password != "newpass123" {
		t.Fatal("expected backend password to change")
	}
	if c.IsAuthenticated() || c.Store().Pending() != nil {
		t.Fatal("reset must not touch session state")
	}
}

func TestResetDoesNotRevealUnknownAccounts(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	flow := c.PasswordReset()
	if _, err := flow.RequestCode(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if flow.Step() != ResetAwaitingCode {
		t.Fatalf("unexpected step %v", flow.Step())
	}

	fake.FailNext(backendtest.MethodRequestReset, backendtest.Status("/api/auth/forgot-password", 404, "User not found"))
	flow = c.PasswordReset()
	if _, err := flow.RequestCode(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("404 must look like success: %v", err)
	}
	if flow.Step() != ResetAwaitingCode {
		t.Fatalf("unexpected step %v", flow.Step())
	}
}

func TestResetRequestFailures(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	flow := c.PasswordReset()

	_, err := flow.RequestCode(ctx, "not-an-email")
	requireFlowError(t, err, ErrInvalidEmail, ErrValidation)
	if fake.TotalCalls() != 0 {
		t.Fatal("expected no network call")
	}

	fake.FailNext(backendtest.MethodRequestReset, backendtest.Status("/api/auth/forgot-password", 500, "db down"))
	_, err = flow.RequestCode(ctx, bobEmail)
	requireFlowError(t, err, ErrTransport, ErrTransport)

	fake.FailNext(backendtest.MethodRequestReset, backendtest.Status("/api/auth/forgot-password", 400, "Email is required"))
	_, err = flow.RequestCode(ctx, bobEmail)
	requireFlowError(t, err, ErrResetFailed, ErrAuthentication)

	if flow.Step() != ResetAwaitingEmail {
		t.Fatalf("failures must not advance, got %v", flow.Step())
	}
}

func TestResetCodeCheckedLocally(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()
	if _, err := flow.RequestCode(ctx, bobEmail); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	calls := fake.TotalCalls()

	for _, code := range []string{"12345", "1234", "abcdef", "1234567"} {
		err := flow.EnterCode(ctx, code)
		requireFlowError(t, err, ErrInvalidCode, ErrValidation)
	}
	if fake.TotalCalls() != calls {
		t.Fatal("code entry must make zero network calls")
	}
	if flow.Step() != ResetAwaitingCode {
		t.Fatalf("unexpected step %v", flow.Step())
	}
}

func TestResetPasswordCheckedLocally(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()
	if _, err := flow.RequestCode(ctx, bobEmail); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if err := flow.EnterCode(ctx, fake.ResetCode(bobEmail)); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}

	_, err := flow.Submit(ctx, "newpass123", "newpass124")
	requireFlowError(t, err, ErrPasswordMismatch, ErrValidation)

	_, err = flow.Submit(ctx, "abcd123", "abcd123")
	requireFlowError(t, err, ErrPasswordTooShort, ErrValidation)

	if fake.Calls(backendtest.MethodResetWithCode) != 0 {
		t.Fatal("local violations must not reach the backend")
	}

	if _, err := flow.Submit(ctx, "abcd1234", "abcd1234"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if fake.Calls(backendtest.MethodResetWithCode) != 1 {
		t.Fatal("expected exactly one reset call")
	}
}

func TestResetWrongCodeAndBack(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()
	if _, err := flow.RequestCode(ctx, bobEmail); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if err := flow.EnterCode(ctx, "000000"); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}

	_, err := flow.Submit(ctx, "newpass123", "newpass123")
	fe := requireFlowError(t, err, ErrResetFailed, ErrAuthentication)
	if fe.Detail != backendtest.MsgInvalidOTP {
		t.Fatalf("unexpected detail %q", fe.Detail)
	}
	if flow.Step() != ResetAwaitingNewPassword {
		t.Fatalf("failed submit must stay on the password step, got %v", flow.Step())
	}

	if err := flow.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if flow.Step() != ResetAwaitingCode || flow.Code() != "000000" {
		t.Fatalf("expected code kept, got %v / %q", flow.Step(), flow.Code())
	}
	if err := flow.EnterCode(ctx, fake.ResetCode(bobEmail)); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if _, err := flow.Submit(ctx, "newpass123", "newpass123"); err != nil {
		t.Fatalf("Submit with right code failed: %v", err)
	}
}

func TestResetBackFromCodeKeepsEmail(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()

	if err := flow.Back(); err == nil {
		t.Fatal("Back from the first step must fail")
	}
	if _, err := flow.RequestCode(ctx, bobEmail); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if err := flow.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if flow.Step() != ResetAwaitingEmail || flow.Email() != bobEmail || flow.Code() != "" {
		t.Fatalf("unexpected state %v / %q / %q", flow.Step(), flow.Email(), flow.Code())
	}
}

func TestResetStepsCannotBeSkipped(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	flow := c.PasswordReset()

	requireFlowError(t, flow.EnterCode(ctx, "123456"), ErrResetStep, ErrFlowState)
	_, err := flow.Submit(ctx, "newpass123", "newpass123")
	requireFlowError(t, err, ErrResetStep, ErrFlowState)
	if fake.TotalCalls() != 0 {
		t.Fatal("expected no network call")
	}
}

func TestResetAbandon(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()
	if _, err := flow.RequestCode(ctx, bobEmail); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if err := flow.EnterCode(ctx, "123456"); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}

	flow.Abandon()
	if flow.Step() != ResetAwaitingEmail || flow.Email() != "" || flow.Code() != "" {
		t.Fatal("expected everything cleared")
	}
}

func TestResetAbandonDropsInFlightRequest(t *testing.T) {
	c, fake := newTestClient(t)
	addBob(fake)
	ctx := context.Background()
	flow := c.PasswordReset()

	started := make(chan struct{})
	release := make(chan struct{})
	fake.Hook(backendtest.MethodRequestReset, func(context.Context) {
		close(started)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := flow.RequestCode(ctx, bobEmail)
		done <- err
	}()
	<-started

	_, err := flow.RequestCode(ctx, bobEmail)
	requireFlowError(t, err, ErrFlowBusy, ErrFlowState)

	flow.Abandon()
	close(release)

	requireFlowError(t, <-done, ErrFlowAbandoned, ErrFlowState)
	if flow.Step() != ResetAwaitingEmail || flow.Email() != "" {
		t.Fatal("stale response must not advance the flow")
	}
}

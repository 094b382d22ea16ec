package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
)

type authStatus struct {
	Backend       string    `json:"backend"`
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"id,omitempty"`
	Email         string    `json:"email,omitempty"`
	Username      string    `json:"username,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero"`
}

// AuthLogin signs in and saves the session.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}

	email := cmd.String("email")
	pw, err := r.readPassword("Password: ", cmd.Bool("password-stdin"))
	if err != nil {
		return err
	}

	r.logger.Info("signing in", "email", email, "backend", r.auth.Name())
	id, err := r.state.SignIn(ctx, email, pw)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Signed in as %s\n", id.Email)
}

// AuthSignup creates an account and signs in when the provider allows it right away.
func (r *Runner) AuthSignup(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}

	email := cmd.String("email")
	pw, err := r.newPassword(cmd.Bool("password-stdin"))
	if err != nil {
		return err
	}

	session, err := r.auth.SignUp(ctx, email, pw)
	if err != nil {
		return err
	}
	if session == nil {
		return r.writePlain("✓ Account created. Check %s for a confirmation link, then run `vibewatch auth login`.\n", email)
	}
	if err := r.state.Set(session); err != nil {
		return err
	}
	return r.writePlain("✓ Account created, signed in as %s\n", session.User.Email)
}

// AuthLogout revokes and forgets the saved session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}
	if r.state.Identity().Anonymous() {
		return r.writePlain("Not signed in\n")
	}
	if err := r.state.SignOut(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus prints the signed-in identity and its profile.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}

	id := r.state.Identity()
	status := authStatus{Backend: r.auth.Name(), Authenticated: !id.Anonymous(), UserID: id.UserID, Email: id.Email}
	if session := r.state.Session(); session != nil {
		status.ExpiresAt = session.ExpiresAt
	}
	if status.Authenticated {
		if profile, err := r.auth.Profile(ctx, id); err != nil {
			r.logger.Warn("failed to load profile", "error", err)
		} else {
			status.Username = profile.Username
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}

	r.writePlain("Backend: %s\n", status.Backend)
	if !status.Authenticated {
		return r.writePlain("Authentication: ✗ Not signed in\n")
	}
	r.writePlain("Authentication: ✓ %s", status.Email)
	if status.Username != "" {
		r.writePlain(" (%s)", status.Username)
	}
	r.writePlain("\n")
	if !status.ExpiresAt.IsZero() {
		r.writePlain("Session expires: %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// AuthReset starts password recovery.
func (r *Runner) AuthReset(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}

	redirect := cmd.String("redirect-to")
	if redirect == "" {
		redirect = r.config.Server.BaseURL
	}
	if err := r.auth.ResetPassword(ctx, cmd.String("email"), redirect); err != nil {
		return err
	}

	r.writePlain("✓ If an account exists for %s, reset instructions are on their way.\n", cmd.String("email"))
	if _, ok := r.auth.(services.ResetConfirmer); ok {
		r.writePlain("Finish with `vibewatch auth reset-confirm --email %s --code <code>`.\n", cmd.String("email"))
	}
	return nil
}

// AuthResetConfirm sets a new password with a reset code.
func (r *Runner) AuthResetConfirm(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}
	confirmer, ok := r.auth.(services.ResetConfirmer)
	if !ok {
		return fmt.Errorf("%w: %s backend resets passwords through the e-mailed link", shared.ErrNotImplemented, r.auth.Name())
	}

	pw, err := r.newPassword(cmd.Bool("password-stdin"))
	if err != nil {
		return err
	}
	if err := confirmer.ConfirmReset(ctx, cmd.String("email"), cmd.String("code"), pw); err != nil {
		return err
	}
	return r.writePlain("✓ Password updated. Run `vibewatch auth login` to sign in.\n")
}

// AuthDeleteAccount deletes the account, then its list rows and the saved session.
func (r *Runner) AuthDeleteAccount(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}
	if !cmd.Bool("yes") && !r.confirm(fmt.Sprintf("Delete %s and both lists?", r.state.Email())) {
		return r.writePlain("Cancelled\n")
	}

	if err := r.auth.DeleteAccount(ctx, r.state.Session()); err != nil {
		return err
	}
	if n, err := r.lists.Clear(ctx, owner); err != nil {
		r.logger.Warn("failed to remove list rows", "owner", owner, "error", err)
	} else {
		r.logger.Info("removed list rows", "owner", owner, "rows", n)
	}
	if err := r.state.Clear(); err != nil {
		return err
	}
	return r.writePlain("✓ Account deleted\n")
}

// package services defines the external collaborators of the list service: the catalog,
// the identity provider and the hosted row store.
package services

import (
	"context"

	"github.com/desertthunder/vibewatch/internal/models"
)

// Catalog is the read-only movie and TV metadata service.
type Catalog interface {
	// Trending returns today's trending movies and shows.
	Trending(ctx context.Context) ([]models.Media, error)

	// PopularPeople returns the first page of popular people.
	PopularPeople(ctx context.Context) ([]models.Person, error)

	// Search looks up movies and shows by free text.
	Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error)

	// Details returns a title with credits, images, videos, keywords, external ids,
	// recommendations and similar titles appended.
	Details(ctx context.Context, mt models.MediaType, id int64) (*models.Details, error)

	// ExternalIDs returns the ids of a title in other databases.
	ExternalIDs(ctx context.Context, mt models.MediaType, id int64) (*models.ExternalIDs, error)

	// Collection returns a movie collection with its parts.
	Collection(ctx context.Context, id int64) (*models.Collection, error)

	// Recommendations returns titles recommended for a title.
	Recommendations(ctx context.Context, mt models.MediaType, id int64) ([]models.Media, error)

	// Similar returns titles similar to a title.
	Similar(ctx context.Context, mt models.MediaType, id int64) ([]models.Media, error)
}

// Authenticator is the identity provider. Login, signup and password reset are delegated to it entirely.
type Authenticator interface {
	// SignIn exchanges an e-mail and password for a session.
	SignIn(ctx context.Context, email, password string) (*models.Session, error)

	// SignUp registers an account. A nil session with a nil error means the provider
	// requires e-mail confirmation before the first sign in.
	SignUp(ctx context.Context, email, password string) (*models.Session, error)

	// SignOut revokes the session.
	SignOut(ctx context.Context, session *models.Session) error

	// ResetPassword starts the password recovery flow for email.
	ResetPassword(ctx context.Context, email, redirectTo string) error

	// ExchangeCode trades the code from an auth callback for a session.
	ExchangeCode(ctx context.Context, code, verifier string) (*models.Session, error)

	// Refresh issues a new session from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)

	// Verify validates an access token and returns its identity.
	Verify(ctx context.Context, accessToken string) (models.Identity, error)

	// Profile returns the display profile of an identity.
	Profile(ctx context.Context, id models.Identity) (models.Profile, error)

	// DeleteAccount removes the signed-in account.
	DeleteAccount(ctx context.Context, session *models.Session) error

	// Name returns the provider name
	Name() string
}

// ResetConfirmer completes a password reset with a one-time code.
type ResetConfirmer interface {
	ConfirmReset(ctx context.Context, email, code, newPassword string) error
}

// Viewer exposes who is signed in and notifies when that changes.
type Viewer interface {
	CurrentUserID() string
	OnChange(cb func(models.Identity)) (cancel func())
}

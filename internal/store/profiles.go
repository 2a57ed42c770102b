package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// An empty profile id picks the owner's most recently updated profile.
const selectProfileSQL = `
	SELECT id, owner_id, COALESCE(display_name, ''), COALESCE(sender_company, ''),
	       COALESCE(sender_department, ''), COALESCE(sender_last_name, ''),
	       COALESCE(sender_first_name, ''), COALESCE(phone_number, ''),
	       COALESCE(sender_email, ''), COALESCE(sender_url, ''),
	       COALESCE(subject_title, ''), COALESCE(message_body, ''),
	       COALESCE(industry_tags, '{}')
	FROM sender_profiles
	WHERE owner_id = $1
	  AND ($2::text = '' OR id::text = $2)
	ORDER BY updated_at DESC
	LIMIT 1`

// GetProfile fetches one sender profile of an owner.
func (s *Store) GetProfile(ctx context.Context, ownerID, profileID string) (*schemas.SenderProfile, error) {
	var p schemas.SenderProfile
	err := s.pool.QueryRow(ctx, selectProfileSQL, ownerID, profileID).Scan(
		&p.ID, &p.OwnerID, &p.DisplayName, &p.CompanyName,
		&p.Department, &p.LastName,
		&p.FirstName, &p.PhoneNumber,
		&p.Email, &p.WebsiteURL,
		&p.SubjectTitle, &p.MessageBody,
		&p.IndustryTags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: owner %s profile %q", schemas.ErrProfileNotFound, ownerID, profileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sender profile: %w", err)
	}
	return &p, nil
}

package schemas

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChecker map[string]bool

func (f fakeChecker) Exists(_ context.Context, selector string) (bool, error) {
	if selector == "#broken" {
		return false, errors.New("SyntaxError")
	}
	return f[selector], nil
}

func TestFieldSelectorMap_Normalize(t *testing.T) {
	m := FieldSelectorMap{
		CompanyName:          "  #company ",
		LastName:             "null",
		FirstName:            "None",
		Email:                "N/A",
		Body:                 "textarea[name=body]",
		InquiryCategoryValue: "sales",
	}
	m.Normalize()

	assert.Equal(t, "#company", m.CompanyName)
	assert.Empty(t, m.LastName)
	assert.Empty(t, m.FirstName)
	assert.Empty(t, m.Email)
	assert.Equal(t, "textarea[name=body]", m.Body)
	assert.Empty(t, m.InquiryCategoryValue, "value without a category selector is dropped")
}

func TestFieldSelectorMap_Prune(t *testing.T) {
	m := FieldSelectorMap{
		CompanyName:          "#company",
		Email:                "#ghost",
		SubmitButton:         "#broken",
		InquiryCategory:      "#category",
		InquiryCategoryValue: "other",
	}
	removed := m.Prune(context.Background(), fakeChecker{"#company": true})
	sort.Strings(removed)

	assert.Equal(t, []string{SlotEmail, SlotInquiryCategory, SlotSubmitButton}, removed)
	assert.Equal(t, "#company", m.CompanyName)
	assert.Empty(t, m.Email)
	assert.Empty(t, m.InquiryCategoryValue)
	assert.False(t, m.HasSubmitControl())
}

func TestFieldSelectorMap_Present(t *testing.T) {
	m := FieldSelectorMap{Body: "#b", ConfirmButton: "#c"}
	present := m.Present()
	sort.Strings(present)
	assert.Equal(t, []string{SlotBody, SlotConfirmButton}, present)
	assert.True(t, m.HasSubmitControl())
}

func TestJobStatus(t *testing.T) {
	assert.True(t, StatusPending.Claimable())
	assert.True(t, StatusQueued.Claimable())
	assert.False(t, StatusProcessing.Claimable())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, JobStatus("archived").Valid())
}

func TestBatchSummary_Done(t *testing.T) {
	assert.False(t, BatchSummary{}.Done(), "empty batch is never done")
	assert.False(t, BatchSummary{Total: 2, Completed: 1, Processing: 1}.Done())
	assert.True(t, BatchSummary{Total: 2, Completed: 1, Errored: 1}.Done())
}

func TestSenderProfile_Snapshot(t *testing.T) {
	p := &SenderProfile{DisplayName: "default", IndustryTags: []string{"saas"}}
	snap := p.Snapshot()
	p.IndustryTags[0] = "retail"
	p.DisplayName = "edited"

	assert.Equal(t, "default", snap.DisplayName)
	assert.Equal(t, []string{"saas"}, snap.IndustryTags)
}

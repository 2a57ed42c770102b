package filler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/mocks"
)

func newTestFiller(t *testing.T) *Filler {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.ActionTimeout = time.Second
	cfg.SubmitCfg.PostFillPause = 10 * time.Millisecond
	return New(cfg, zaptest.NewLogger(t))
}

func TestApply_BestEffort(t *testing.T) {
	f := newTestFiller(t)
	page := new(mocks.MockSession)

	plan := []Action{
		{Op: OpFill, Slot: schemas.SlotCompanyName, Selector: "#company", Value: "Acme"},
		{Op: OpFill, Slot: schemas.SlotEmail, Selector: "#mail", Value: "a@b.c"},
		{Op: OpFill, Slot: schemas.SlotBody, Selector: "#body", Value: "hi"},
	}
	page.On("Fill", mock.Anything, "#company", "Acme").Return(nil)
	page.On("Fill", mock.Anything, "#mail", "a@b.c").Return(schemas.ErrElementNotFound)
	page.On("Fill", mock.Anything, "#body", "hi").Return(nil)
	page.On("Sleep", mock.Anything, 10*time.Millisecond).Return(nil)

	report := f.Apply(context.Background(), page, plan)

	assert.False(t, report.OK())
	assert.Len(t, report.Applied, 2)
	assert.Equal(t, []string{schemas.SlotEmail}, report.FailedSlots())
	assert.ErrorIs(t, report.Failures[0].Err, schemas.ErrElementNotFound)
	page.AssertExpectations(t)
}

func TestApply_PerActionTimeout(t *testing.T) {
	f := newTestFiller(t)
	page := new(mocks.MockSession)

	page.On("Fill", mock.Anything, "#company", "Acme").Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		deadline, ok := ctx.Deadline()
		assert.True(t, ok, "each action runs with a deadline")
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 200*time.Millisecond)
	}).Return(nil)
	page.On("Sleep", mock.Anything, mock.Anything).Return(nil)

	report := f.Apply(context.Background(), page, []Action{{Op: OpFill, Slot: schemas.SlotCompanyName, Selector: "#company", Value: "Acme"}})
	assert.True(t, report.OK())
	page.AssertExpectations(t)
}

func TestApply_AgreementFallsBackToClick(t *testing.T) {
	f := newTestFiller(t)
	agree := Action{Op: OpCheck, Slot: schemas.SlotAgreementCheckbox, Selector: ".agree-label"}

	t.Run("Check succeeds", func(t *testing.T) {
		page := new(mocks.MockSession)
		page.On("Check", mock.Anything, ".agree-label").Return(nil)
		page.On("Sleep", mock.Anything, mock.Anything).Return(nil)

		report := f.Apply(context.Background(), page, []Action{agree})
		assert.True(t, report.OK())
		page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	})

	t.Run("Click after Check fails", func(t *testing.T) {
		page := new(mocks.MockSession)
		page.On("Check", mock.Anything, ".agree-label").Return(schemas.ErrNotCheckable)
		page.On("Click", mock.Anything, ".agree-label").Return(nil)
		page.On("Sleep", mock.Anything, mock.Anything).Return(nil)

		report := f.Apply(context.Background(), page, []Action{agree})
		assert.True(t, report.OK())
		page.AssertExpectations(t)
	})

	t.Run("Both fail", func(t *testing.T) {
		page := new(mocks.MockSession)
		page.On("Check", mock.Anything, ".agree-label").Return(schemas.ErrNotCheckable)
		page.On("Click", mock.Anything, ".agree-label").Return(errors.New("not clickable"))
		page.On("Sleep", mock.Anything, mock.Anything).Return(nil)

		report := f.Apply(context.Background(), page, []Action{agree})
		assert.Equal(t, []string{schemas.SlotAgreementCheckbox}, report.FailedSlots())
		assert.ErrorIs(t, report.Failures[0].Err, schemas.ErrNotCheckable)
	})
}

func TestApply_CategoryByElementKind(t *testing.T) {
	f := newTestFiller(t)

	tests := []struct {
		name   string
		action Action
		kind   schemas.ElementKind
		expect func(page *mocks.MockSession)
		ok     bool
	}{
		{
			name:   "select element",
			action: Action{Op: OpSelect, Slot: schemas.SlotInquiryCategory, Selector: "#cat", Value: "営業"},
			kind:   schemas.KindSelect,
			expect: func(page *mocks.MockSession) {
				page.On("SelectOption", mock.Anything, "#cat", "営業").Return(nil)
			},
			ok: true,
		},
		{
			name:   "radio with a value is checked",
			action: Action{Op: OpSelect, Slot: schemas.SlotInquiryCategory, Selector: "#cat", Value: "営業"},
			kind:   schemas.KindRadio,
			expect: func(page *mocks.MockSession) {
				page.On("Check", mock.Anything, "#cat").Return(nil)
			},
			ok: true,
		},
		{
			name:   "label element is clicked",
			action: Action{Op: OpClick, Slot: schemas.SlotInquiryCategory, Selector: "label.other"},
			kind:   schemas.KindOther,
			expect: func(page *mocks.MockSession) {
				page.On("Click", mock.Anything, "label.other").Return(nil)
			},
			ok: true,
		},
		{
			name:   "select without value",
			action: Action{Op: OpClick, Slot: schemas.SlotInquiryCategory, Selector: "#cat"},
			kind:   schemas.KindSelect,
			expect: func(page *mocks.MockSession) {},
			ok:     false,
		},
		{
			name:   "missing element",
			action: Action{Op: OpClick, Slot: schemas.SlotInquiryCategory, Selector: "#cat"},
			kind:   schemas.KindMissing,
			expect: func(page *mocks.MockSession) {},
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := new(mocks.MockSession)
			page.On("ElementKind", mock.Anything, tt.action.Selector).Return(tt.kind, nil)
			page.On("Sleep", mock.Anything, mock.Anything).Return(nil)
			tt.expect(page)

			report := f.Apply(context.Background(), page, []Action{tt.action})
			assert.Equal(t, tt.ok, report.OK())
			page.AssertExpectations(t)
		})
	}
}

func TestApply_StopsOnCancellation(t *testing.T) {
	f := newTestFiller(t)
	page := new(mocks.MockSession)

	ctx, cancel := context.WithCancel(context.Background())
	page.On("Fill", mock.Anything, "#a", "1").Run(func(mock.Arguments) { cancel() }).Return(nil)

	plan := []Action{
		{Op: OpFill, Slot: schemas.SlotCompanyName, Selector: "#a", Value: "1"},
		{Op: OpFill, Slot: schemas.SlotEmail, Selector: "#b", Value: "2"},
	}
	report := f.Apply(ctx, page, plan)

	assert.Len(t, report.Applied, 1)
	assert.Equal(t, []string{schemas.SlotEmail}, report.FailedSlots())
	assert.ErrorIs(t, report.Failures[0].Err, context.Canceled)
	page.AssertNotCalled(t, "Sleep", mock.Anything, mock.Anything)
}

package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/model/providers/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *Router {
	prefs := map[core.TaskType][]core.ProviderClass{
		core.TaskTypeResearch: {core.ProviderClassAnthropic, core.ProviderClassOpenAI},
	}
	return New(prefs, time.Second, time.Minute, nil, nil)
}

func TestRouter_ExecuteHappyPath(t *testing.T) {
	r := newTestRouter()
	r.RegisterProvider("claude", core.ProviderClassAnthropic, mock.New("hello from claude"))

	result, err := r.Execute(context.Background(), core.TaskTypeResearch, "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", result.Content)
	assert.Equal(t, "claude", result.Provider)
}

func TestRouter_FallsOverToSecondaryOnSystemFailure(t *testing.T) {
	r := newTestRouter()
	r.RegisterProvider("claude", core.ProviderClassAnthropic, mock.NewFailing(errors.New("network connection refused")))
	r.RegisterProvider("gpt", core.ProviderClassOpenAI, mock.New("hello from gpt"))

	result, err := r.Execute(context.Background(), core.TaskTypeResearch, "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "gpt", result.Provider)
}

func TestRouter_AllCandidatesUnavailableReturnsRetryableSystemError(t *testing.T) {
	r := newTestRouter()
	r.RegisterProvider("claude", core.ProviderClassAnthropic, mock.NewFailing(errors.New("network connection refused")))
	r.RegisterProvider("gpt", core.ProviderClassOpenAI, mock.NewFailing(errors.New("network connection refused")))

	_, err := r.Execute(context.Background(), core.TaskTypeResearch, "hi", Options{})
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, core.CategorySystem, rerr.Category)
	assert.True(t, rerr.Retryable)
}

func TestRouter_NoCandidatesForTaskType(t *testing.T) {
	r := newTestRouter()
	_, err := r.Execute(context.Background(), core.TaskTypeOptimization, "hi", Options{})
	require.Error(t, err)
}

func TestRouter_ValidationFailureDoesNotFallOver(t *testing.T) {
	r := newTestRouter()
	r.RegisterProvider("claude", core.ProviderClassAnthropic, mock.NewFailing(errors.New("validation: bad request")))
	r.RegisterProvider("gpt", core.ProviderClassOpenAI, mock.New("should not be reached"))

	_, err := r.Execute(context.Background(), core.TaskTypeResearch, "hi", Options{})
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, core.CategoryValidation, rerr.Category)
}

func TestRouter_GetModelStats(t *testing.T) {
	r := newTestRouter()
	r.RegisterProvider("claude", core.ProviderClassAnthropic, mock.New("x"))
	_, err := r.Execute(context.Background(), core.TaskTypeResearch, "hi", Options{})
	require.NoError(t, err)

	stats := r.GetModelStats()
	require.Contains(t, stats, "claude")
	assert.True(t, stats["claude"].Available)
}

func TestRouter_SelectOptimalModel(t *testing.T) {
	r := newTestRouter()
	r.RegisterProvider("claude", core.ProviderClassAnthropic, mock.New("x"))
	r.RegisterProvider("gpt", core.ProviderClassOpenAI, mock.New("y"))
	assert.Equal(t, "claude", r.SelectOptimalModel(core.TaskTypeResearch))
}

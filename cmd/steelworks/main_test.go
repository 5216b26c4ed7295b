package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steelworks-erp/steelworks/internal/app"
	_ "github.com/steelworks-erp/steelworks/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}

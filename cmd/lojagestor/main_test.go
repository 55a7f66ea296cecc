package main

import (
	"testing"

	"github.com/loja-gestor/loja-gestor/internal/app"
	_ "github.com/loja-gestor/loja-gestor/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("guard should enable test mode")
	}
	main()
}

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

func TestPrintAttempts(t *testing.T) {
	var out bytes.Buffer
	err := printAttempts(&out, []models.PurchaseAttempt{{
		Key:        "k1",
		Run:        2,
		CustomerID: "alice",
		ItemID:     3,
		Quantity:   2,
		Amount:     decimal.RequireFromString("199.98"),
		Status:     models.AttemptCompensationFailed,
		UpdatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "KEY")
	assert.Contains(t, string(lines[1]), "199.98")
	assert.Contains(t, string(lines[1]), "compensation_failed")
	assert.Contains(t, string(lines[1]), "2026-03-01 12:00:00")
}

func TestPrintNoAttempts(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printAttempts(&out, nil))
	assert.Equal(t, "No attempts.\n", out.String())
}

func TestCommandTree(t *testing.T) {
	cmd := attemptsCmd()
	list, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "list", list.Name())
	assert.Equal(t, models.AttemptCompensationFailed, list.Flags().Lookup("status").DefValue)

	reverse, _, err := cmd.Find([]string{"reverse"})
	require.NoError(t, err)
	assert.Error(t, reverse.Args(reverse, nil))
	require.NotNil(t, reverse.Flags().Lookup("older-than"))
	assert.Equal(t, "0s", reverse.Flags().Lookup("older-than").DefValue)
}

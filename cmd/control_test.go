package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/tejiriaustin/fimtracker/models"
)

func TestPrintTrail(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	printTrail(c, []models.FileView{
		{FileID: 1, EventType: models.EventCreation, EventTime: &at, Hash: "352441c2", User: "root", Role: models.RoleAdmin},
		{FileID: 2, EventType: models.EventRenamed, RenamedFrom: "x.txt", RenamedTo: "y.txt", Hash: "352441c2", User: "root", Role: models.RoleAdmin},
	})

	got := out.String()
	assert.Contains(t, got, "ID")
	assert.Contains(t, got, "2026-02-03T04:05:06Z")
	assert.Contains(t, got, "Renamed from x.txt to y.txt")
	assert.Contains(t, got, "Admin")
}

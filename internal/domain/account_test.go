package domain //nolint:testpackage // Exercises validation alongside the types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccount_Validate(t *testing.T) {
	valid := Account{
		ID:               "acct-1",
		CreditsRemaining: 1,
		CreditsUsed:      2,
	}

	tests := []struct {
		name    string
		modify  func(*Account)
		wantErr bool
	}{
		{name: "fresh account without materials", modify: func(_ *Account) {}, wantErr: false},
		{name: "zero balance is valid", modify: func(a *Account) { a.CreditsRemaining = 0 }, wantErr: false},
		{name: "saved materials", modify: func(a *Account) {
			a.Materials = BackgroundMaterials{
				JobDescription: "Backend engineer",
				Resume:         "Five years of Go",
				NumQuestions:   3,
			}
		}, wantErr: false},
		{name: "missing id", modify: func(a *Account) { a.ID = "" }, wantErr: true},
		{name: "negative balance", modify: func(a *Account) { a.CreditsRemaining = -1 }, wantErr: true},
		{name: "negative used count", modify: func(a *Account) { a.CreditsUsed = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.modify(&a)
			err := a.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBackgroundMaterials_Validate(t *testing.T) {
	valid := BackgroundMaterials{
		JobDescription: "Backend engineer building payment systems",
		Resume:         "Five years of Go",
		NumQuestions:   5,
	}

	tests := []struct {
		name    string
		modify  func(*BackgroundMaterials)
		wantErr bool
	}{
		{name: "valid materials", modify: func(_ *BackgroundMaterials) {}, wantErr: false},
		{name: "missing job description", modify: func(m *BackgroundMaterials) { m.JobDescription = "" }, wantErr: true},
		{name: "missing resume", modify: func(m *BackgroundMaterials) { m.Resume = "" }, wantErr: true},
		{name: "zero questions", modify: func(m *BackgroundMaterials) { m.NumQuestions = 0 }, wantErr: true},
		{name: "too many questions", modify: func(m *BackgroundMaterials) { m.NumQuestions = 21 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.modify(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

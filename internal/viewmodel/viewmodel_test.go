package viewmodel

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
)

func TestProfile_Defaults(t *testing.T) {
	created := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	got := Profile(repository.ProfileRecord{
		ID:            "u1",
		Name:          "Aiko",
		Program:       "bdes",
		PrimaryStudio: "games",
		CreatedAt:     created,
	})

	want := model.Profile{
		ID:                "u1",
		Name:              "Aiko",
		Program:           model.ProgramBDes,
		Skills:            []string{},
		Bio:               "",
		PrimaryStudio:     model.StudioGames,
		StudioPreferences: []model.Studio{model.StudioGames},
		CreatedAt:         created,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Profile mismatch (-want +got):\n%s", diff)
	}
}

func TestProfile_StudioPreferences(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		prefs   []string
		want    []model.Studio
	}{
		{
			name:    "nil list",
			primary: "service",
			prefs:   nil,
			want:    []model.Studio{"service"},
		},
		{
			name:    "empty list",
			primary: "service",
			prefs:   []string{},
			want:    []model.Studio{"service"},
		},
		{
			name:    "primary already first",
			primary: "games",
			prefs:   []string{"games", "industrial"},
			want:    []model.Studio{"games", "industrial"},
		},
		{
			name:    "primary included later keeps order",
			primary: "games",
			prefs:   []string{"industrial", "games"},
			want:    []model.Studio{"industrial", "games"},
		},
		{
			name:    "primary missing is inserted first",
			primary: "games",
			prefs:   []string{"industrial", "service"},
			want:    []model.Studio{"games", "industrial", "service"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Profile(repository.ProfileRecord{PrimaryStudio: tt.primary, StudioPreferences: tt.prefs})
			if diff := cmp.Diff(tt.want, got.StudioPreferences); diff != "" {
				t.Errorf("StudioPreferences mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// 未知の列挙値は既定値に置き換えず、そのまま通す。
func TestProfile_UnknownEnumPassesThrough(t *testing.T) {
	got := Profile(repository.ProfileRecord{Program: "phd_unknown", PrimaryStudio: "space"})
	if got.Program != "phd_unknown" {
		t.Errorf("Program = %q, want phd_unknown", got.Program)
	}
	if got.PrimaryStudio != "space" {
		t.Errorf("PrimaryStudio = %q, want space", got.PrimaryStudio)
	}
	if got.PrimaryStudio.IsValid() {
		t.Error("unknown studio should not be valid")
	}
}

func TestProfile_OptionalFields(t *testing.T) {
	got := Profile(repository.ProfileRecord{
		Skills:       []string{"Figma", "Blender"},
		Bio:          sql.NullString{String: "hello", Valid: true},
		AvatarURL:    sql.NullString{String: "https://cdn.example.com/a.png", Valid: true},
		PortfolioURL: sql.NullString{String: "https://example.com/me", Valid: true},
	})
	if diff := cmp.Diff([]string{"Figma", "Blender"}, got.Skills); diff != "" {
		t.Errorf("Skills mismatch (-want +got):\n%s", diff)
	}
	if got.Bio != "hello" || got.AvatarURL != "https://cdn.example.com/a.png" || got.PortfolioURL != "https://example.com/me" {
		t.Errorf("optional fields not mapped: %+v", got)
	}
}

// 返却したスライスを変更しても元のレコードに影響しない。
func TestProfile_DoesNotAliasInput(t *testing.T) {
	rec := repository.ProfileRecord{Skills: []string{"Go"}}
	got := Profile(rec)
	got.Skills[0] = "Rust"
	if rec.Skills[0] != "Go" {
		t.Errorf("input mutated: %v", rec.Skills)
	}
}

func TestProfiles_PreservesOrder(t *testing.T) {
	got := Profiles([]repository.ProfileRecord{{ID: "b"}, {ID: "a"}, {ID: "c"}})
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if empty := Profiles(nil); empty == nil || len(empty) != 0 {
		t.Errorf("Profiles(nil) = %v, want empty non-nil", empty)
	}
}

func TestTeam_Defaults(t *testing.T) {
	got := Team(repository.TeamRecord{ID: "t1", Name: "Crew", Studio: "games", CreatedBy: "u1"}, nil)

	want := model.Team{
		ID:             "t1",
		Name:           "Crew",
		Studio:         model.StudioGames,
		Members:        []model.Profile{},
		TargetPrograms: []model.Program{},
		SkillsNeeded:   []string{},
		CreatedBy:      "u1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Team mismatch (-want +got):\n%s", diff)
	}
}

func TestTeam_MapsFields(t *testing.T) {
	members := []model.Profile{{ID: "u1"}, {ID: "u2"}}
	got := Team(repository.TeamRecord{
		ID:             "t1",
		Studio:         "unknown_studio",
		Description:    sql.NullString{String: "desc", Valid: true},
		LookingFor:     sql.NullString{String: "a 3D artist", Valid: true},
		TargetPrograms: []string{"bfa", "mystery"},
		SkillsNeeded:   []string{"Maya"},
	}, members)

	if got.Studio != "unknown_studio" {
		t.Errorf("Studio = %q", got.Studio)
	}
	if got.Description != "desc" || got.LookingFor != "a 3D artist" {
		t.Errorf("text fields not mapped: %+v", got)
	}
	if diff := cmp.Diff([]model.Program{"bfa", "mystery"}, got.TargetPrograms); diff != "" {
		t.Errorf("TargetPrograms mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(members, got.Members); diff != "" {
		t.Errorf("Members mismatch (-want +got):\n%s", diff)
	}
}

package quiz_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/quiz"
	"github.com/quizera/backend/core/realtime"
	dummydb "github.com/quizera/backend/storage/database/dummy"
)

// capturePublisher records every published event with its channel key.
type capturePublisher struct {
	keys   []string
	events []realtime.Event
}

func (p *capturePublisher) Publish(_ context.Context, key string, evt realtime.Event) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, evt)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) (*quiz.Service, *capturePublisher) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	pub := new(capturePublisher)
	return quiz.NewService(dummydb.NewQuizRepository(db), pub, nopLogger{}, validate), pub
}

func Test_service_Create(t *testing.T) {
	svc, pub := setup(t)

	mod, err := svc.Create("c1", quiz.NewModule{Title: "Intro", Description: "The basics", Position: 1})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	assert.NotEmpty(t, mod.ID)
	assert.Equal(t, "c1", mod.CompanyID)
	assert.False(t, mod.IsPublished, "new modules start unpublished")

	// a created event goes out on the company's modules channel
	if assert.Len(t, pub.events, 1) {
		assert.Equal(t, realtime.ModulesKey("c1"), pub.keys[0])
		evt := pub.events[0]
		assert.Equal(t, realtime.EventCreated, evt.Kind)
		assert.Equal(t, mod.ID, evt.ID)
		assert.Nil(t, evt.Before)

		var snapshot quiz.Module
		if err := json.Unmarshal(evt.After, &snapshot); err != nil {
			t.Fatalf("json.Unmarshal(After) failed: %v", err)
		}
		assert.Equal(t, mod, snapshot)
	}
}

func Test_service_Update(t *testing.T) {
	svc, pub := setup(t)

	orig, err := svc.Create("c1", quiz.NewModule{Title: "Intro", Description: "The basics"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	bPtr := func(b bool) *bool { return &b }
	data := quiz.UpdateModule{Title: "Intro 101", IsPublished: bPtr(true)}
	if err = data.Validate(orig, svc); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	mod, err := svc.Update(orig, data)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	assert.Equal(t, "Intro 101", mod.Title)
	assert.True(t, mod.IsPublished)
	assert.Equal(t, orig.Description, mod.Description, "unset fields keep their values")

	if assert.Len(t, pub.events, 2) {
		evt := pub.events[1]
		assert.Equal(t, realtime.EventUpdated, evt.Kind)
		assert.Equal(t, mod.ID, evt.ID)

		var before quiz.Module
		if err := json.Unmarshal(evt.Before, &before); err != nil {
			t.Fatalf("json.Unmarshal(Before) failed: %v", err)
		}
		assert.Equal(t, orig, before)
	}
}

func Test_service_Delete(t *testing.T) {
	svc, pub := setup(t)

	mod, err := svc.Create("c1", quiz.NewModule{Title: "Intro"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err = svc.Delete(mod); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err = svc.GetByID(mod.ID); err != quiz.ErrNotFound {
		t.Errorf("GetByID() error = %v, want %v", err, quiz.ErrNotFound)
	}

	if assert.Len(t, pub.events, 2) {
		evt := pub.events[1]
		assert.Equal(t, realtime.EventDeleted, evt.Kind)
		assert.Equal(t, mod.ID, evt.ID)
		assert.Nil(t, evt.After)
	}
}

func Test_service_QueryByCompany(t *testing.T) {
	svc, _ := setup(t)

	mod2, _ := svc.Create("c1", quiz.NewModule{Title: "Advanced", Position: 1})
	mod1, _ := svc.Create("c1", quiz.NewModule{Title: "Intro", Position: 0})
	if _, err := svc.Create("c2", quiz.NewModule{Title: "Other Co"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	mods, err := svc.QueryByCompany("c1")
	if err != nil {
		t.Fatalf("QueryByCompany() failed: %v", err)
	}
	assert.Equal(t, []quiz.Module{mod1, mod2}, mods, "modules come back in position order, company-scoped")

	mods, err = svc.QueryByCompany("c1", core.DBOrdering{Field: "position", Ascending: false})
	if err != nil {
		t.Fatalf("QueryByCompany() failed: %v", err)
	}
	assert.Equal(t, []quiz.Module{mod2, mod1}, mods)
}

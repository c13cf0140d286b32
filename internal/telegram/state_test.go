package telegram

import "testing"

func TestTakeClearsPendingAwait(t *testing.T) {
	m := NewStateManager()
	m.Set(42, Await{Kind: AwaitFeedback})

	if got := m.Take(42); got.Kind != AwaitFeedback {
		t.Fatalf("first take = %v, want AwaitFeedback", got.Kind)
	}
	if got := m.Take(42); got.Kind != AwaitNone {
		t.Fatalf("second take = %v, want AwaitNone", got.Kind)
	}
}

func TestSetReplacesPreviousAwait(t *testing.T) {
	m := NewStateManager()
	m.Set(42, Await{Kind: AwaitQuantity})
	m.Set(42, Await{Kind: AwaitSingleImagePrompt, Image: []byte{1}})

	got := m.Take(42)
	if got.Kind != AwaitSingleImagePrompt {
		t.Fatalf("kind = %v, want AwaitSingleImagePrompt", got.Kind)
	}
	if len(got.Image) != 1 {
		t.Errorf("buffered image lost")
	}
}

func TestSetNoneClears(t *testing.T) {
	m := NewStateManager()
	m.Set(42, Await{Kind: AwaitFeedback})
	m.Set(42, Await{Kind: AwaitNone})
	if got := m.Take(42); got.Kind != AwaitNone {
		t.Fatalf("kind = %v, want AwaitNone", got.Kind)
	}
}

func TestAwaitsAreIsolatedPerUser(t *testing.T) {
	m := NewStateManager()
	m.Set(1, Await{Kind: AwaitFeedback})
	m.Set(2, Await{Kind: AwaitQuantity})

	if got := m.Take(1); got.Kind != AwaitFeedback {
		t.Errorf("user 1 = %v", got.Kind)
	}
	if got := m.Take(2); got.Kind != AwaitQuantity {
		t.Errorf("user 2 = %v", got.Kind)
	}
}

func TestModelSelectionSurvivesTake(t *testing.T) {
	m := NewStateManager()
	m.SelectModel(42, "openai/dall-e-3")
	m.Set(42, Await{Kind: AwaitQuantity})
	m.Take(42)
	m.Clear(42)

	if got := m.SelectedModel(42); got != "openai/dall-e-3" {
		t.Errorf("selected model = %q", got)
	}
	if got := m.SelectedModel(7); got != "" {
		t.Errorf("other user's model = %q, want empty", got)
	}
}

func TestBufferedAlbumImagesTravelWithAwait(t *testing.T) {
	m := NewStateManager()
	images := [][]byte{{1}, {2}, {3}}
	m.Set(42, Await{Kind: AwaitMultiImagePrompt, Images: images})

	got := m.Take(42)
	if got.Kind != AwaitMultiImagePrompt || len(got.Images) != 3 {
		t.Fatalf("await = %+v", got)
	}
}

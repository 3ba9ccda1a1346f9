package figma

import (
	"reflect"
	"testing"
)

const sampleFile = `{
  "name": "App screens",
  "lastModified": "2024-05-01T10:00:00Z",
  "version": "42",
  "document": {
    "id": "0:0", "name": "Document", "type": "DOCUMENT",
    "children": [
      {"id": "0:1", "name": "Cover", "type": "CANVAS", "children": [
        {"id": "9:1", "name": "Other", "type": "FRAME", "children": [
          {"id": "9:2", "name": "#metadata-card-x", "type": "FRAME", "children": [
            {"id": "9:3", "name": "t", "type": "TEXT", "characters": "App Version: 9"}
          ]}
        ]}
      ]},
      {"id": "1:0", "name": "🏞️ 스샷 모음", "type": "CANVAS", "children": [
        {"id": "1:1", "name": "Home", "type": "FRAME", "children": [
          {"id": "1:2", "name": "#metadata-card-home", "type": "FRAME", "children": [
            {"id": "1:3", "name": "bg", "type": "RECTANGLE"},
            {"id": "1:4", "name": "meta", "type": "TEXT",
             "characters": "App Version: 1.2.0\nScreen Type: Main, -, \nUI Components: Button, Card\nScreen ID: HOME-01"},
            {"id": "1:5", "name": "meta2", "type": "TEXT", "characters": "App Version: 7"}
          ]},
          {"id": "1:6", "name": "#metadata-card-dup", "type": "FRAME", "children": [
            {"id": "1:7", "name": "meta", "type": "TEXT", "characters": "App Version: 2.0"}
          ]}
        ]},
        {"id": "2:1", "name": "-", "type": "FRAME", "children": [
          {"id": "2:2", "name": "#metadata-card-dash", "type": "FRAME", "children": [
            {"id": "2:3", "name": "meta", "type": "TEXT", "characters": "Screen Type: Main"}
          ]}
        ]},
        {"id": "3:1", "name": "Hidden", "type": "FRAME", "visible": false, "children": [
          {"id": "3:2", "name": "#metadata-card-h", "type": "FRAME", "children": [
            {"id": "3:3", "name": "meta", "type": "TEXT", "characters": "Screen Type: Main"}
          ]}
        ]},
        {"id": "4:1", "name": "Group parent", "type": "GROUP", "children": [
          {"id": "4:2", "name": "#metadata-card-g", "type": "FRAME", "children": [
            {"id": "4:3", "name": "meta", "type": "TEXT", "characters": "Screen Type: Main"}
          ]}
        ]},
        {"id": "5:1", "name": "Settings", "type": "COMPONENT", "children": [
          {"id": "5:2", "name": "#metadata-card-s", "type": "FRAME", "children": [
            {"id": "5:3", "name": "meta", "type": "TEXT", "characters": "Screen Type: Settings, Main\nUI Components: Toggle, Button"}
          ]}
        ]},
        {"id": "6:1", "name": "No text", "type": "FRAME", "children": [
          {"id": "6:2", "name": "#metadata-card-n", "type": "FRAME", "children": [
            {"id": "6:3", "name": "r", "type": "RECTANGLE"}
          ]}
        ]},
        {"id": "7:2", "name": "#metadata-card-top", "type": "FRAME", "children": [
          {"id": "7:3", "name": "meta", "type": "TEXT", "characters": "Screen Type: Orphan"}
        ]},
        {"id": "8:1", "name": "Removed", "type": "FRAME", "removed": true, "children": [
          {"id": "8:2", "name": "#metadata-card-r", "type": "FRAME", "children": [
            {"id": "8:3", "name": "meta", "type": "TEXT", "characters": "Screen Type: Main"}
          ]}
        ]}
      ]}
    ]
  }
}`

func decodeSample(t *testing.T) *Document {
	t.Helper()
	doc, err := DecodeDocument([]byte(sampleFile))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Metadata
	}{
		{
			name: "all fields",
			text: "App Version: 1.2.0\nScreen Type: Main, Detail\nUI Components: Button, Card",
			want: Metadata{AppVersion: "1.2.0", ScreenType: []string{"Main", "Detail"}, UIComponents: []string{"Button", "Card"}},
		},
		{
			name: "dash and blanks dropped",
			text: "Screen Type: -, , Main ,-",
			want: Metadata{ScreenType: []string{"Main"}, UIComponents: []string{}},
		},
		{
			name: "missing labels",
			text: "nothing useful here",
			want: Metadata{ScreenType: []string{}, UIComponents: []string{}},
		},
		{
			name: "first occurrence wins",
			text: "App Version: 1\nApp Version: 2\nScreen ID:  S-9 ",
			want: Metadata{AppVersion: "1", ScreenType: []string{}, UIComponents: []string{}, ScreenID: "S-9"},
		},
		{
			name: "value stops at line end",
			text: "Screen Type: A, B\r\nmore",
			want: Metadata{ScreenType: []string{"A", "B"}, UIComponents: []string{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMetadata(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScreens(t *testing.T) {
	// WHAT: Only valid, visible, named FRAME/COMPONENT parents become screens.
	// WHY: Cards on other pages, under groups, hidden or removed parents, or
	// without a text child are design scaffolding, not screens.
	doc := decodeSample(t)
	got := Screens(doc, ScreenOptions{})

	want := []Screen{
		{
			ID:           "1:1",
			ScreenTitle:  "Home",
			AppVersion:   "1.2.0",
			ScreenType:   []string{"Main"},
			UIComponents: []string{"Button", "Card"},
			ScreenID:     "HOME-01",
		},
		{
			ID:           "5:1",
			ScreenTitle:  "Settings",
			ScreenType:   []string{"Settings", "Main"},
			UIComponents: []string{"Toggle", "Button"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestScreens_DuplicateParentFirstWins(t *testing.T) {
	// WHAT: Two cards under one parent produce one screen from the first card.
	// WHY: The parent id is the screen identity.
	doc := decodeSample(t)
	got := Screens(doc, ScreenOptions{})
	count := 0
	for _, s := range got {
		if s.ID == "1:1" {
			count++
			if s.AppVersion != "1.2.0" {
				t.Errorf("app version = %q, want first card's 1.2.0", s.AppVersion)
			}
		}
	}
	if count != 1 {
		t.Errorf("screens for 1:1 = %d, want 1", count)
	}
}

func TestScreens_DashNameMarksSeen(t *testing.T) {
	// WHAT: A parent named "-" is claimed by its first card even though it is
	// skipped, so a later card under the same parent cannot revive it.
	doc := &Document{Root: &Container{
		NodeBase: NodeBase{ID: "0:0", Type: TypeDocument, Visible: true},
		Children: []Node{
			&Container{
				NodeBase: NodeBase{ID: "1:0", Name: DefaultPageName, Type: TypeCanvas, Visible: true},
				Children: []Node{
					&Container{
						NodeBase: NodeBase{ID: "2:1", Name: "-", Type: TypeFrame, Visible: true},
						Children: []Node{
							card("2:2", "Screen Type: A"),
							card("2:3", "Screen Type: B"),
						},
					},
				},
			},
		},
	}}
	if got := Screens(doc, ScreenOptions{}); len(got) != 0 {
		t.Errorf("got %d screens, want 0", len(got))
	}
}

func TestScreens_MissingPage(t *testing.T) {
	doc := decodeSample(t)
	got := Screens(doc, ScreenOptions{PageName: "nope"})
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil slice", got)
	}
}

func TestScreens_CustomPrefix(t *testing.T) {
	doc := &Document{Root: &Container{
		NodeBase: NodeBase{ID: "0:0", Type: TypeDocument, Visible: true},
		Children: []Node{
			&Container{
				NodeBase: NodeBase{ID: "1:0", Name: "Shots", Type: TypeCanvas, Visible: true},
				Children: []Node{
					&Container{
						NodeBase: NodeBase{ID: "2:1", Name: "Login", Type: TypeFrame, Visible: true},
						Children: []Node{
							&Container{
								NodeBase: NodeBase{ID: "2:2", Name: "@meta", Type: TypeFrame, Visible: true},
								Children: []Node{&Text{NodeBase: NodeBase{ID: "2:3", Type: TypeText, Visible: true}, Characters: "App Version: 3"}},
							},
						},
					},
				},
			},
		},
	}}
	got := Screens(doc, ScreenOptions{PageName: "Shots", CardPrefix: "@meta"})
	if len(got) != 1 || got[0].ID != "2:1" || got[0].AppVersion != "3" {
		t.Errorf("got %+v", got)
	}
}

func card(id, text string) *Container {
	return &Container{
		NodeBase: NodeBase{ID: id, Name: DefaultCardPrefix + id, Type: TypeFrame, Visible: true},
		Children: []Node{&Text{NodeBase: NodeBase{ID: id + "t", Type: TypeText, Visible: true}, Characters: text}},
	}
}

func TestWalk_PreOrder(t *testing.T) {
	doc := decodeSample(t)
	page := doc.Canvas(DefaultPageName)
	var ids []string
	Walk(page, func(n, _ Node) {
		ids = append(ids, n.Base().ID)
	})
	want := []string{"1:0", "1:1", "1:2", "1:3", "1:4", "1:5", "1:6", "1:7"}
	if !reflect.DeepEqual(ids[:len(want)], want) {
		t.Errorf("walk order = %v, want prefix %v", ids[:len(want)], want)
	}
}

func TestDecodeDocument_Kinds(t *testing.T) {
	doc := decodeSample(t)
	if doc.Name != "App screens" || doc.Version != "42" {
		t.Errorf("file fields = %q %q", doc.Name, doc.Version)
	}
	page := doc.Canvas(DefaultPageName)
	if page == nil {
		t.Fatal("page not found")
	}
	home := page.Children[0].(*Container)
	cardNode := home.Children[0].(*Container)
	if _, ok := cardNode.Children[0].(*Leaf); !ok {
		t.Errorf("RECTANGLE decoded as %T, want *Leaf", cardNode.Children[0])
	}
	if txt, ok := cardNode.Children[1].(*Text); !ok || txt.Characters == "" {
		t.Errorf("TEXT decoded as %T", cardNode.Children[1])
	}
	hidden := page.Children[2].(*Container)
	if hidden.Visible {
		t.Error("visible:false not honoured")
	}
	if !home.Visible {
		t.Error("absent visible should default to true")
	}
}

func TestDecodeDocument_MissingDocument(t *testing.T) {
	if _, err := DecodeDocument([]byte(`{"name":"x"}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestAllTags(t *testing.T) {
	screens := []Screen{
		{ScreenType: []string{"Main", "Detail"}, UIComponents: []string{"Button"}},
		{ScreenType: []string{"Detail", "Settings"}, UIComponents: []string{"", "Card", "Button"}},
		{},
	}
	got := AllTags(screens)
	if want := []string{"Main", "Detail", "Settings"}; !reflect.DeepEqual(got.ScreenType, want) {
		t.Errorf("screen types = %v, want %v", got.ScreenType, want)
	}
	if want := []string{"Button", "Card"}; !reflect.DeepEqual(got.UIComponents, want) {
		t.Errorf("ui components = %v, want %v", got.UIComponents, want)
	}
}

func TestAllTags_Empty(t *testing.T) {
	got := AllTags(nil)
	if len(got.ScreenType) != 0 || got.ScreenType == nil {
		t.Errorf("screen types = %#v", got.ScreenType)
	}
}

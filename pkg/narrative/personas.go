package narrative

import (
	"fmt"
	"regexp"
	"strings"
)

// The two narrative personas. The Architect rewrites whole scenes; the
// Dungeon Master narrates reactions within the current scene and may hand
// off to the Architect with a scene-change directive.
const (
	PersonaArchitect     = "architect"
	PersonaDungeonMaster = "dungeon_master"
)

// Deterministic fallback text used whenever the service fails or times
// out. Tests assert on these exact strings.
const (
	FallbackScene  = "The world flickers, but the scene refuses to change. Everything settles back into familiar shapes."
	FallbackNarrat = "The moment passes without an answer; the room holds its breath."
	FallbackFlavor = "Nothing out of the ordinary."
)

const architectSystem = `You are the Architect of a shared text world. When a traveler pushes
past the edge of a scene, you rebuild the scene around them. Respond with
a vivid second-person description of the new scene, at most two
paragraphs. You may begin your response with a directive line
[vr_title <title>] to retitle the scene. Never address the traveler as a
player; never mention rules or games. Stay consistent with the scene memo
and the traveler's stated intent.`

const dungeonMasterSystem = `You are the Dungeon Master of a shared text world. A traveler has done
something the world must react to. Respond with a short second-person
narration of the world's reaction, staying inside the current scene. If
the traveler's action should carry them into an entirely different scene,
end your response with the directive [scene_change] on its own. Never
mention rules or games.`

// SceneContext carries everything a persona needs to answer.
type SceneContext struct {
	RoomName   string
	RoomDesc   string
	Memo       string        // accumulated scene memo
	Intent     string        // player-authored intent
	History    []ChatMessage // recent persona exchanges, oldest first
	Event      string        // what the player just did or attempted
	PlayerName string
}

// BuildMessages assembles the chat conversation for a persona call.
func BuildMessages(persona string, sc SceneContext) []ChatMessage {
	system := dungeonMasterSystem
	if persona == PersonaArchitect {
		system = architectSystem
	}

	var ctx strings.Builder
	fmt.Fprintf(&ctx, "Scene: %s\n", sc.RoomName)
	if sc.RoomDesc != "" {
		fmt.Fprintf(&ctx, "Current description: %s\n", sc.RoomDesc)
	}
	if sc.Memo != "" {
		fmt.Fprintf(&ctx, "Scene memo: %s\n", sc.Memo)
	}
	if sc.Intent != "" {
		fmt.Fprintf(&ctx, "Traveler's intent: %s\n", sc.Intent)
	}
	fmt.Fprintf(&ctx, "Traveler: %s\n", sc.PlayerName)

	msgs := []ChatMessage{
		{Role: "system", Content: system},
		{Role: "system", Content: ctx.String()},
	}
	msgs = append(msgs, sc.History...)
	msgs = append(msgs, ChatMessage{Role: "user", Content: sc.Event})
	return msgs
}

// Response is a parsed persona answer with directives separated out.
type Response struct {
	Text        string
	SceneChange bool   // Dungeon Master hands off to the Architect
	VRTitle     string // Architect retitled the scene
}

var (
	sceneChangeRe = regexp.MustCompile(`(?m)^\s*\[scene_change\]\s*$|\[scene_change\]`)
	vrTitleRe     = regexp.MustCompile(`\[vr_title ([^\]]+)\]`)
)

// ParseResponse extracts directives from raw persona output and returns
// the cleaned narration.
func ParseResponse(raw string) Response {
	var r Response
	if sceneChangeRe.MatchString(raw) {
		r.SceneChange = true
		raw = sceneChangeRe.ReplaceAllString(raw, "")
	}
	if m := vrTitleRe.FindStringSubmatch(raw); m != nil {
		r.VRTitle = strings.TrimSpace(m[1])
		raw = vrTitleRe.ReplaceAllString(raw, "")
	}
	r.Text = strings.TrimSpace(raw)
	return r
}

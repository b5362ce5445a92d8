package events

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseClientEvent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType ClientEventType
		want     any
	}{
		{
			name:     "joinRoom",
			raw:      `{"type":"joinRoom","data":{"roomId":"r1","userId":"alice","gameType":"tugOfWar"}}`,
			wantType: ClientJoinRoom,
			want:     JoinRoom{RoomID: "r1", UserID: "alice", GameType: "tugOfWar"},
		},
		{
			name:     "leaveRoom",
			raw:      `{"type":"leaveRoom","data":{"roomId":"r1"}}`,
			wantType: ClientLeaveRoom,
			want:     LeaveRoom{RoomID: "r1"},
		},
		{
			name:     "tug",
			raw:      `{"type":"tug","data":{"roomId":"r1","direction":"left","force":0.8}}`,
			wantType: ClientTug,
			want:     Tug{RoomID: "r1", Direction: "left", Force: 0.8},
		},
		{
			name:     "gridTap",
			raw:      `{"type":"gridTap","data":{"roomId":"r1","index":4,"timestamp":1700000000000}}`,
			wantType: ClientGridTap,
			want:     GridTap{RoomID: "r1", Index: 4, Timestamp: 1700000000000},
		},
		{
			name:     "frequencyUpdate",
			raw:      `{"type":"frequencyUpdate","data":{"roomId":"r1","value":0.42}}`,
			wantType: ClientFrequencyUpdate,
			want:     FrequencyUpdate{RoomID: "r1", Value: 0.42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, got, err := ParseClientEvent([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseClientEvent: %v", err)
			}
			if gotType != tt.wantType {
				t.Errorf("type = %q, want %q", gotType, tt.wantType)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("payload = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseClientEventRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"teleport","data":{}}`},
		{"bad payload shape", `{"type":"tug","data":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseClientEvent([]byte(tt.raw)); err == nil {
				t.Error("want error, got nil")
			}
		})
	}
}

func TestServerEventJSONShape(t *testing.T) {
	ev := ServerEvent{
		ID:     "ev-1",
		RoomID: "r1",
		Type:   EventCordUpdate,
		Data:   CordUpdate{CordPosition: -0.3, RevealedMilestones: []int{0}},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			CordPosition       float64 `json:"cordPosition"`
			RevealedMilestones []int   `json:"revealedMilestones"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "cordUpdate" || decoded.Data.CordPosition != -0.3 || len(decoded.Data.RevealedMilestones) != 1 {
		t.Errorf("wire shape = %s", data)
	}
}

package debugsvc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DataExMachina-dev/safepoint-go/threadlist"
)

// ThreadInfo describes one registered thread.
type ThreadInfo struct {
	ID                uint32
	Name              string
	State             string
	Daemon            bool
	SuspendCount      int
	DebugSuspendCount int
}

// ThreadInfoOf describes t.
func ThreadInfoOf(t *threadlist.Thread) ThreadInfo {
	return ThreadInfo{
		ID:                t.ID(),
		Name:              t.Name(),
		State:             t.State().String(),
		Daemon:            t.IsDaemon(),
		SuspendCount:      t.SuspendCount(),
		DebugSuspendCount: t.DebugSuspendCount(),
	}
}

// ToStruct encodes ti for the wire.
func (ti ThreadInfo) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"id":                float64(ti.ID),
		"name":              ti.Name,
		"state":             ti.State,
		"daemon":            ti.Daemon,
		"suspendCount":      float64(ti.SuspendCount),
		"debugSuspendCount": float64(ti.DebugSuspendCount),
	})
}

// ThreadInfoFromStruct decodes what ToStruct encoded.
func ThreadInfoFromStruct(s *structpb.Struct) (ThreadInfo, error) {
	f := s.GetFields()
	name, ok := f["name"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return ThreadInfo{}, fmt.Errorf("thread entry without a name: %v", s)
	}
	return ThreadInfo{
		ID:                uint32(f["id"].GetNumberValue()),
		Name:              name.StringValue,
		State:             f["state"].GetStringValue(),
		Daemon:            f["daemon"].GetBoolValue(),
		SuspendCount:      int(f["suspendCount"].GetNumberValue()),
		DebugSuspendCount: int(f["debugSuspendCount"].GetNumberValue()),
	}, nil
}

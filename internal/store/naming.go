package store

import "fmt"

const CoordinatorLogName = "coordinator.log"

func ParticipantLabel(i uint32) string {
	return fmt.Sprintf("participant_%d", i)
}

func ParticipantLogName(i uint32) string {
	return ParticipantLabel(i) + ".log"
}

func ClientLabel(i uint32) string {
	return fmt.Sprintf("client_%d", i)
}

func ClientLogName(i uint32) string {
	return ClientLabel(i) + ".log"
}

package utils

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

func GetGroupID(ctx *gin.Context) (uint, error) {
	groupIDStr := ctx.Param("group_id")

	if groupIDStr == "" {
		return 0, errors.New("Group ID not found")
	}

	groupID, err := strconv.ParseUint(groupIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Group ID")
	}

	return uint(groupID), nil
}

func GetEventID(ctx *gin.Context) (uint, error) {
	eventIDStr := ctx.Param("event_id")

	if eventIDStr == "" {
		return 0, errors.New("Event ID not found")
	}

	eventID, err := strconv.ParseUint(eventIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Event ID")
	}

	return uint(eventID), nil
}

func GetGroupEventID(ctx *gin.Context) (uint, uint, error) {
	groupID, err := GetGroupID(ctx)

	if err != nil {
		return 0, 0, err
	}

	eventID, err := GetEventID(ctx)

	if err != nil {
		return 0, 0, err
	}

	return groupID, eventID, nil
}

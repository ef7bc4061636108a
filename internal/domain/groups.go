package domain

import "slices"

// StatusGroup is a tab of the order list screens.
type StatusGroup string

// Customer tabs.
const (
	GroupProcessing StatusGroup = "processing"
	GroupConfirmed  StatusGroup = "confirmed"
	GroupPreparing  StatusGroup = "preparing"
	GroupShipping   StatusGroup = "shipping"
	GroupToReview   StatusGroup = "to_review"
	GroupCanceled   StatusGroup = "canceled"
)

// Admin tabs. GroupCanceled is shared.
const (
	GroupNew        StatusGroup = "new"
	GroupInProgress StatusGroup = "in_progress"
	GroupDelivered  StatusGroup = "delivered"
)

type groupDef struct {
	group    StatusGroup
	label    string
	statuses []OrderStatus
}

var userGroups = []groupDef{
	{GroupProcessing, "Chờ xác nhận", []OrderStatus{StatusProcessing}},
	{GroupConfirmed, "Đã xác nhận", []OrderStatus{StatusConfirmed}},
	{GroupPreparing, "Đang chuẩn bị", []OrderStatus{StatusPreparing}},
	{GroupShipping, "Đang giao", []OrderStatus{StatusShipping}},
	{GroupToReview, "Đánh giá", []OrderStatus{StatusDelivered}},
	{GroupCanceled, "Đã hủy", []OrderStatus{StatusCanceled}},
}

var adminGroups = []groupDef{
	{GroupNew, "Đơn mới", []OrderStatus{StatusProcessing}},
	{GroupInProgress, "Đang xử lý", []OrderStatus{StatusConfirmed, StatusPreparing, StatusShipping}},
	{GroupDelivered, "Đã giao", []OrderStatus{StatusDelivered}},
	{GroupCanceled, "Đã hủy", []OrderStatus{StatusCanceled}},
}

// GroupCount is one tab with the number of orders in it.
type GroupCount struct {
	Group    StatusGroup   `json:"group"`
	Label    string        `json:"label"`
	Statuses []OrderStatus `json:"statuses"`
	Count    int           `json:"count"`
}

func groupDefs(admin bool) []groupDef {
	if admin {
		return adminGroups
	}
	return userGroups
}

// GroupStatuses returns the statuses of a tab, or false if the tab is unknown
// for the given surface.
func GroupStatuses(g StatusGroup, admin bool) ([]OrderStatus, bool) {
	for _, d := range groupDefs(admin) {
		if d.group == g {
			return d.statuses, true
		}
	}
	return nil, false
}

// CountByGroup buckets statuses into the surface's tabs. Every tab is
// present, even when empty.
func CountByGroup(statuses []OrderStatus, admin bool) []GroupCount {
	defs := groupDefs(admin)
	out := make([]GroupCount, len(defs))
	for i, d := range defs {
		out[i] = GroupCount{Group: d.group, Label: d.label, Statuses: d.statuses}
		for _, s := range statuses {
			if slices.Contains(d.statuses, s) {
				out[i].Count++
			}
		}
	}
	return out
}

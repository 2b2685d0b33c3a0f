package sla

import "time"

// BusinessHours считает целые часы между start и end, пропуская субботу и
// воскресенье. Это НЕ настоящий бизнес-календарь: ночные часы и праздники
// считаются. Алгоритм намеренно повторяет исходный (пошаговый обход по часу),
// чтобы пороги SLA не сдвинулись; не "чинить" на календарную версию.
func BusinessHours(start, end time.Time) int {
	hours := 0
	for cur := start; cur.Before(end); cur = cur.Add(time.Hour) {
		wd := cur.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			hours++
		}
	}
	return hours
}

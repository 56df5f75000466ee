// Package weather 回答天气问题：从问题中提取地名，经地理编码得到坐标，
// 再查询当天的气温与降水并格式化为文本。
package weather

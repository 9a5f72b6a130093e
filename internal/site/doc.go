// Package site 串联一次完整构建：加载要素、摄取图片、写出 GeoJSON 与要素页面。
package site

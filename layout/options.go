package layout

// BuildOptions 配置 DSL 到布局描述的转换。
type BuildOptions struct {
	// SizeUnit 是标签尺寸未写单位时采用的单位，默认毫米。
	SizeUnit Unit
	// Name 非空时覆盖 DSL 中声明的标签名。
	Name string
}

func (o BuildOptions) sizeUnit() Unit {
	if o.SizeUnit == UnitNone {
		return UnitMM
	}
	return o.SizeUnit
}

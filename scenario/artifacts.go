package scenario

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path"

	"github.com/mixedtraffic/loopsim/utils/config"
)

// The ring is rendered for the simulator as four circular-arc edges joining
// four junctions, with Net.Resolution shape points per quarter. The file
// formats below are simulator-native and opaque to everything but the
// simulator itself.

var ringEdges = [4]string{"bottom", "right", "top", "left"}

// EdgeAt maps a ring position to the simulator edge containing it and the
// position local to that edge.
func (sc *Scenario) EdgeAt(pos float64) (string, float64) {
	quarter := sc.Net.Length / 4
	i := int(math.Mod(pos, sc.Net.Length) / quarter)
	if i > 3 {
		i = 3
	}
	return ringEdges[i], pos - float64(i)*quarter
}

// WriteArtifacts generates the network, route and configuration files the
// simulator needs, under Net.OutputPath, and returns the path of the
// configuration file to launch the simulator with.
func (sc *Scenario) WriteArtifacts(sim config.Simulator) (string, error) {
	dir := sc.Net.OutputPath
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("scenario: create artifact dir: %w", err)
	}
	netFile := sc.Name + ".net.xml"
	rouFile := sc.Name + ".rou.xml"
	cfgFile := sc.Name + ".sumocfg"
	if err := writeXML(path.Join(dir, netFile), sc.networkXML()); err != nil {
		return "", err
	}
	if err := writeXML(path.Join(dir, rouFile), sc.routesXML()); err != nil {
		return "", err
	}
	cfgPath := path.Join(dir, cfgFile)
	if err := writeXML(cfgPath, sc.configXML(netFile, rouFile, sim)); err != nil {
		return "", err
	}
	log.Infof("scenario %s: artifacts written to %s", sc.Name, dir)
	return cfgPath, nil
}

func writeXML(p string, v any) error {
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(xml.Header); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("scenario: encode %s: %w", p, err)
	}
	return nil
}

type xmlLane struct {
	ID     string  `xml:"id,attr"`
	Index  int     `xml:"index,attr"`
	Speed  float64 `xml:"speed,attr"`
	Length float64 `xml:"length,attr"`
	Shape  string  `xml:"shape,attr"`
}

type xmlEdge struct {
	ID    string    `xml:"id,attr"`
	From  string    `xml:"from,attr"`
	To    string    `xml:"to,attr"`
	Lanes []xmlLane `xml:"lane"`
}

type xmlJunction struct {
	ID   string  `xml:"id,attr"`
	Type string  `xml:"type,attr"`
	X    float64 `xml:"x,attr"`
	Y    float64 `xml:"y,attr"`
}

type xmlNet struct {
	XMLName   xml.Name      `xml:"net"`
	Edges     []xmlEdge     `xml:"edge"`
	Junctions []xmlJunction `xml:"junction"`
}

func (sc *Scenario) networkXML() xmlNet {
	r := sc.Net.Length / (2 * math.Pi)
	quarter := sc.Net.Length / 4
	// junction k sits at angle -90° + k*90° so that "bottom" is the first
	// edge of the ring and position 0 is at the bottom of the circle.
	angle := func(pos float64) float64 {
		return -math.Pi/2 + 2*math.Pi*pos/sc.Net.Length
	}
	point := func(pos float64) (float64, float64) {
		a := angle(pos)
		return r * math.Cos(a), r * math.Sin(a)
	}

	net := xmlNet{}
	nodes := [4]string{"bottom-node", "right-node", "top-node", "left-node"}
	for k, id := range nodes {
		x, y := point(float64(k) * quarter)
		net.Junctions = append(net.Junctions, xmlJunction{ID: id, Type: "priority", X: x, Y: y})
	}
	for k, id := range ringEdges {
		start := float64(k) * quarter
		shape := ""
		for p := 0; p <= sc.Net.Resolution; p++ {
			x, y := point(start + quarter*float64(p)/float64(sc.Net.Resolution))
			if p > 0 {
				shape += " "
			}
			shape += fmt.Sprintf("%.2f,%.2f", x, y)
		}
		e := xmlEdge{ID: id, From: nodes[k], To: nodes[(k+1)%4]}
		for l := 0; l < sc.Net.Lanes; l++ {
			e.Lanes = append(e.Lanes, xmlLane{
				ID:     fmt.Sprintf("%s_%d", id, l),
				Index:  l,
				Speed:  sc.Net.SpeedLimit,
				Length: quarter,
				Shape:  shape,
			})
		}
		net.Edges = append(net.Edges, e)
	}
	return net
}

type xmlVType struct {
	ID       string  `xml:"id,attr"`
	MaxSpeed float64 `xml:"maxSpeed,attr"`
	Length   float64 `xml:"length,attr"`
	MinGap   float64 `xml:"minGap,attr"`
}

type xmlRoute struct {
	ID    string `xml:"id,attr"`
	Edges string `xml:"edges,attr"`
}

type xmlVehicle struct {
	ID         string `xml:"id,attr"`
	Type       string `xml:"type,attr"`
	Route      string `xml:"route,attr"`
	Depart     string `xml:"depart,attr"`
	DepartLane string `xml:"departLane,attr"`
	DepartPos  string `xml:"departPos,attr"`
}

type xmlRoutes struct {
	XMLName  xml.Name     `xml:"routes"`
	VTypes   []xmlVType   `xml:"vType"`
	Routes   []xmlRoute   `xml:"route"`
	Vehicles []xmlVehicle `xml:"vehicle"`
}

func (sc *Scenario) routesXML() xmlRoutes {
	rou := xmlRoutes{}
	for _, t := range sc.Types {
		maxSpeed := sc.Net.SpeedLimit
		// a car-following model capped below the lane limit caps the vType too
		for _, key := range []string{"v_max", "v0"} {
			if v, ok := t.CarFollowing.Params[key]; ok && v < maxSpeed {
				maxSpeed = v
			}
		}
		rou.VTypes = append(rou.VTypes, xmlVType{
			ID:       t.Name,
			MaxSpeed: maxSpeed,
			Length:   VehicleLength,
			MinGap:   MinGap,
		})
	}
	// one circular route per starting edge so every vehicle's route begins on
	// the edge it departs from
	for k := range ringEdges {
		edges := ""
		for p := 0; p < 4; p++ {
			if p > 0 {
				edges += " "
			}
			edges += ringEdges[(k+p)%4]
		}
		rou.Routes = append(rou.Routes, xmlRoute{ID: "route-" + ringEdges[k], Edges: edges})
	}
	for _, v := range sc.Vehicles {
		edge, local := sc.EdgeAt(v.Pos)
		rou.Vehicles = append(rou.Vehicles, xmlVehicle{
			ID:         v.ID,
			Type:       v.Type,
			Route:      "route-" + edge,
			Depart:     "0",
			DepartLane: fmt.Sprintf("%d", v.Lane),
			DepartPos:  fmt.Sprintf("%.2f", local),
		})
	}
	return rou
}

type xmlValue struct {
	Value string `xml:"value,attr"`
}

type xmlConfig struct {
	XMLName xml.Name `xml:"configuration"`
	Input   struct {
		NetFile   xmlValue `xml:"net-file"`
		RouteFile xmlValue `xml:"route-files"`
	} `xml:"input"`
	Time struct {
		Begin      xmlValue `xml:"begin"`
		End        xmlValue `xml:"end"`
		StepLength xmlValue `xml:"step-length"`
	} `xml:"time"`
}

func (sc *Scenario) configXML(netFile, rouFile string, sim config.Simulator) xmlConfig {
	cfg := xmlConfig{}
	cfg.Input.NetFile = xmlValue{Value: netFile}
	cfg.Input.RouteFile = xmlValue{Value: rouFile}
	cfg.Time.Begin = xmlValue{Value: fmt.Sprintf("%v", sim.StartTime)}
	cfg.Time.End = xmlValue{Value: fmt.Sprintf("%v", sim.EndTime)}
	cfg.Time.StepLength = xmlValue{Value: fmt.Sprintf("%v", sim.TimeStep)}
	return cfg
}
